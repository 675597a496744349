package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/hookpoint/internal/ir"
)

// Environment variables supplying defaults for the database flags.
const (
	EnvDBDriver = "HOOKPOINT_DB_DRIVER"
	EnvDBDSN    = "HOOKPOINT_DB_DSN"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// API is the directory of the CUE package describing the API.
	API string

	// Driver and DB select the SQL store. An empty DB uses an in-memory
	// provider instead.
	Driver string
	DB     string

	// Seed is an optional YAML file of rows loaded before the command runs.
	Seed string

	// Roles are the caller's roles for model, query, and submit.
	Roles []string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the hookpoint CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "hookpoint",
		Version: ir.RuntimeVersion,
		Short:   "hookpoint - hook-driven data APIs",
		Long: `Compile, inspect, and exercise APIs declared in CUE.

An API is a CUE package of entity types, entity sets, operations, views,
and the permissions guarding them. Queries and submits run through the
same hook pipeline a host program would build.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), opts.Verbose))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logs on stderr)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.API, "api", ".", "directory of the CUE API package")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", envOr(EnvDBDriver, "sqlite3"), "database driver (sqlite3|sqlite|pgx)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", os.Getenv(EnvDBDSN), "database DSN; empty uses an in-memory provider")
	cmd.PersistentFlags().StringVar(&opts.Seed, "seed", "", "YAML file of rows to load, keyed by entity set")
	cmd.PersistentFlags().StringSliceVar(&opts.Roles, "role", nil, "caller role (repeatable)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewModelCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// newLogger writes text logs to w: Debug and up when verbose, otherwise
// warnings and errors only.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
