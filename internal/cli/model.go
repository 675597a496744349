package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/model"
)

// ModelView is the model as one caller sees it.
type ModelView struct {
	Roles     []string        `json:"roles,omitempty"`
	Schema    []ElementView   `json:"schema"`
	Container []ContainerView `json:"container"`
}

// ElementView is one visible schema element.
type ElementView struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// ContainerView is one visible container element.
type ContainerView struct {
	Name string `json:"name"`
	Kind string `json:"kind"`

	// Type is the element type of a set or singleton, or the operation an
	// import refers to.
	Type string `json:"type,omitempty"`
}

// NewModelCommand creates the model command.
func NewModelCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "model",
		Short: "Print the model visible to the caller",
		Long: `Build the API model and print the elements visible to a caller
holding the --role roles.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModel(rootOpts, cmd)
		},
	}
}

func runModel(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	s, err := openSession(ctx, opts)
	if err != nil {
		return loadFailure(formatter, err)
	}
	defer s.close()

	ic := s.api.NewContext(invocation.WithRoles(opts.Roles...))
	domain, err := s.api.Model(ctx, ic)
	if err != nil {
		return apiFailure(formatter, err)
	}
	view := describeModel(domain)
	view.Roles = opts.Roles
	return formatter.Success(view)
}

func describeModel(domain *model.DomainModel) *ModelView {
	view := &ModelView{Schema: []ElementView{}, Container: []ContainerView{}}
	for _, e := range domain.SchemaElements() {
		view.Schema = append(view.Schema, ElementView{Name: e.FullName(), Kind: string(e.ElementKind())})
	}
	c := domain.EntityContainer()
	if c == nil {
		return view
	}
	for _, e := range c.Elements() {
		cv := ContainerView{Name: e.ElementName(), Kind: string(e.ContainerKind())}
		switch v := e.(type) {
		case *model.EntitySet:
			cv.Type = v.EntityType
		case *model.Singleton:
			cv.Type = v.EntityType
		case *model.OperationImport:
			cv.Type = v.Operation
		}
		view.Container = append(view.Container, cv)
	}
	return view
}

// WriteText implements TextWriter.
func (v *ModelView) WriteText(w io.Writer) error {
	for _, e := range v.Schema {
		fmt.Fprintf(w, "%-12s %s\n", e.Kind, e.Name)
	}
	for _, e := range v.Container {
		if e.Type != "" {
			fmt.Fprintf(w, "%-12s %s: %s\n", e.Kind, e.Name, e.Type)
			continue
		}
		fmt.Fprintf(w, "%-12s %s\n", e.Kind, e.Name)
	}
	return nil
}
