package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/beanplan/internal/meta"
)

// LoadValue loads and builds CUE entity definitions. path is either a
// directory holding one CUE package or a single .cue file.
func LoadValue(path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("model not found: %w", err)
	}

	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !info.IsDir() {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE instances loaded from %s", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, formatCUEError(inst.Err)
	}

	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

// LoadModel loads path, compiles its entities and validates them into a
// registry.
func LoadModel(path string) (*meta.Registry, error) {
	v, err := LoadValue(path)
	if err != nil {
		return nil, err
	}
	descs, err := CompileEntities(v)
	if err != nil {
		return nil, err
	}
	if len(descs) == 0 {
		return nil, fmt.Errorf("%s: no entities defined", path)
	}
	reg, problems := NewRegistry(descs)
	if len(problems) > 0 {
		return nil, &ModelError{Problems: problems}
	}
	return reg, nil
}

// ModelError carries every validation problem of a model.
type ModelError struct {
	Problems []ValidationError
}

func (e *ModelError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return "invalid model: " + strings.Join(msgs, "; ")
}
