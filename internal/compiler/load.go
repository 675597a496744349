package compiler

import (
	"fmt"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/hookpoint/internal/queryir"
)

// LoadDir loads the CUE package in dir and compiles it. The spec is not
// validated; call Validate or Check on the result.
func LoadDir(dir string) (*APISpec, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}
	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileAPI(v)
}

// ParseWhere compiles a where clause given as decoded YAML or JSON values.
// It accepts the same condition forms as a view's where.
func ParseWhere(where map[string]any) (queryir.Predicate, error) {
	if len(where) == 0 {
		return nil, nil
	}
	v := cuecontext.New().Encode(where)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return parseWhere("where", v)
}
