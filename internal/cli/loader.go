package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/hookpoint/internal/api"
	"github.com/roach88/hookpoint/internal/compiler"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/querymem"
	"github.com/roach88/hookpoint/internal/store"
)

// Load error codes (E001-E099). Validation codes E1xx come from the
// compiler.
const (
	ErrCodeGeneric    = "E000"
	ErrCodeNotFound   = "E001" // API directory missing or not a directory
	ErrCodeNoFiles    = "E002" // no .cue files in the directory
	ErrCodeCompile    = "E003" // CUE failed to load or the declaration is malformed
	ErrCodeDatabase   = "E004" // store could not be opened
	ErrCodeSeed       = "E005" // seed file unreadable or invalid
	ErrCodeBadRequest = "E006" // malformed query or change set
)

// LoadError is an error that occurred while loading an API.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadAPI loads and validates the CUE API package in dir. On failure it
// returns every problem found: a single load error, or all validation
// errors.
func LoadAPI(dir string) (*compiler.APISpec, []error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("API directory not found: %s", dir)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil || len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	spec, err := compiler.LoadDir(dir)
	if err != nil {
		return nil, []error{convertCompileError(err)}
	}
	verrs := compiler.Validate(spec)
	if len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		return spec, errs
	}
	return spec, nil
}

func convertCompileError(err error) *LoadError {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return &LoadError{Code: ErrCodeCompile, Message: fmt.Sprintf("%s: %s", ce.Field, ce.Message), Pos: ce.Pos}
	}
	return &LoadError{Code: ErrCodeCompile, Message: err.Error()}
}

// errorCode returns the CLI code of a load or validation error.
func errorCode(err error) (code, message string) {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code, le.Message
	}
	var ve compiler.ValidationError
	if errors.As(err, &ve) {
		return ve.Code, ve.Field + ": " + ve.Message
	}
	return ErrCodeGeneric, err.Error()
}

// session is a built API together with the provider behind it.
type session struct {
	spec  *compiler.APISpec
	api   *api.API
	close func() error
}

// openSession loads the API, opens its provider, loads the seed file,
// and builds the API.
func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	spec, errs := LoadAPI(opts.API)
	if len(errs) > 0 {
		code, msg := errorCode(errs[0])
		if len(errs) > 1 {
			msg = fmt.Sprintf("%s (and %d more)", msg, len(errs)-1)
		}
		return nil, &LoadError{Code: code, Message: msg}
	}

	seed, err := readSeed(opts.Seed)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeSeed, Message: err.Error()}
	}
	sets := slices.Sorted(maps.Keys(seed))
	m := spec.Model()

	var provider api.Installer
	closeFn := func() error { return nil }
	if opts.DB == "" {
		p := querymem.New()
		p.DefineModel(m)
		for _, set := range sets {
			if err := p.Load(set, seed[set]...); err != nil {
				return nil, &LoadError{Code: ErrCodeSeed, Message: fmt.Sprintf("seed %s: %v", set, err)}
			}
		}
		provider = p
	} else {
		st, err := store.Open(opts.Driver, opts.DB)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeDatabase, Message: err.Error()}
		}
		st.DefineModel(m)
		for _, set := range sets {
			if err := st.Load(ctx, set, seed[set]...); err != nil {
				st.Close()
				return nil, &LoadError{Code: ErrCodeSeed, Message: fmt.Sprintf("seed %s: %v", set, err)}
			}
		}
		provider, closeFn = st, st.Close
	}

	a, err := api.NewBuilder().Use(spec, provider).Build()
	if err != nil {
		closeFn()
		return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	return &session{spec: spec, api: a, close: closeFn}, nil
}

// readSeed decodes a YAML map of entity set name to rows. An empty path
// yields no rows.
func readSeed(path string) (map[string][]ir.IRObject, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var raw map[string][]map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	out := make(map[string][]ir.IRObject, len(raw))
	for set, rows := range raw {
		for i, row := range rows {
			obj, err := ir.ObjectFromNative(row)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", set, i, err)
			}
			out[set] = append(out[set], obj)
		}
	}
	return out, nil
}

// loadFailure reports err through f and returns the matching exit error.
func loadFailure(f *OutputFormatter, err error) error {
	code, msg := errorCode(err)
	var le *LoadError
	if errors.As(err, &le) && le.Pos.IsValid() {
		msg = le.Error()
	}
	_ = f.Error(code, msg, nil)
	return WrapExitError(ExitCommandError, code, err)
}
