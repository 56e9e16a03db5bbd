package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/beanplan/internal/compiler"
	"github.com/roach88/beanplan/internal/meta"
)

// LoadMode controls how errors are handled during model loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the entities compiled from a model.
type LoadResult struct {
	Descriptors []*meta.Descriptor
	CUEValue    cue.Value // The raw CUE value for additional processing
	FileCount   int       // Number of CUE files found
}

// LoadError represents an error that occurred during model loading.
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

// LoadModel loads and compiles the entities of a model file or directory.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadModel(path string, mode LoadMode) (*LoadResult, []error) {
	if path == "" {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: "no model given (pass a path or set model in the config file)"}}
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("model not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing model: %v", err)}}
	}

	fileCount := 1
	if info.IsDir() {
		cueFiles, err := FindCUEFiles(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
		if len(cueFiles) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
		}
		fileCount = len(cueFiles)
	}

	value, err := compiler.LoadValue(path)
	if err != nil {
		loadErr := convertCompileError(err, ErrCodeLoadFailed)
		loadErr.Code = ErrCodeLoadFailed
		return nil, []error{loadErr}
	}

	result := &LoadResult{CUEValue: value, FileCount: fileCount}

	var errs []error
	entities := value.LookupPath(cue.ParsePath("entity"))
	if entities.Exists() {
		iter, iterErr := entities.Fields()
		if iterErr != nil {
			return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating entities: %v", iterErr)}}
		}
		for iter.Next() {
			d, compileErr := compiler.CompileEntity(iter.Value())
			if compileErr != nil {
				errs = append(errs, convertCompileError(compileErr, ErrCodeGeneric))
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}
			result.Descriptors = append(result.Descriptors, d)
		}
	}

	if len(result.Descriptors) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoEntities, Message: "no entities found in model"})
	}
	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// loadRegistry loads a model and validates it into a registry. Failures are
// command errors.
func loadRegistry(path string) (*meta.Registry, *LoadResult, error) {
	result, errs := LoadModel(path, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load model", errs[0])
	}
	reg, problems := compiler.NewRegistry(result.Descriptors)
	if len(problems) > 0 {
		return nil, nil, WrapExitError(ExitCommandError, "invalid model", &compiler.ModelError{Problems: problems})
	}
	return reg, result, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, fallback string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field, fallback),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: fallback, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeNoEntities  = "E006" // Model defines no entities
	ErrCodeQueryFailed = "E007" // Query file invalid or planning failed
	ErrCodeExecFailed  = "E008" // Statement execution failed
	ErrCodeWriteFailed = "E009" // File write error
	ErrCodeTestFailed  = "E010" // One or more scenarios failed

	// Entity compile errors
	ErrCodeEntityTable       = "E201" // Missing table
	ErrCodeEntityProperties  = "E202" // No properties
	ErrCodeEntityAssociation = "E203" // Invalid association
	ErrCodeCUEType           = "E204" // CUE value of the wrong kind
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field, fallback string) string {
	parts := strings.Split(field, ".")
	switch {
	case field == "cue":
		return ErrCodeCUEType
	case slices.Contains(parts, "associations"):
		return ErrCodeEntityAssociation
	case slices.Contains(parts, "properties"):
		return ErrCodeEntityProperties
	case parts[len(parts)-1] == "table":
		return ErrCodeEntityTable
	default:
		return fallback
	}
}
