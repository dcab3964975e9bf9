package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue/token"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tempo/internal/ir"
)

// Load error codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No scenario files found
	ErrCodeParseFailed = "E004" // Document could not be decoded
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE evaluation failed
	ErrCodeFormat      = "E008" // Unsupported file extension
)

// Extensions lists the supported scenario file extensions.
var Extensions = []string{".yaml", ".yml", ".json", ".cue"}

// LoadError represents an error that occurred while loading a scenario.
type LoadError struct {
	Path    string
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadScenario reads and decodes a scenario file. The format is chosen by
// extension. Unknown fields are rejected in every format, so typos like
// "expects:" for "expect:" are reported instead of ignored.
//
// The scenario is not validated; see compiler.Validate.
func LoadScenario(fsys afero.Fs, path string) (*ir.Scenario, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(Extensions, ext) {
		return nil, &LoadError{Path: path, Code: ErrCodeFormat, Message: fmt.Sprintf("unsupported extension %q (want one of %s)", ext, strings.Join(Extensions, ", "))}
	}

	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &LoadError{Path: path, Code: ErrCodeNotFound, Message: "scenario file not found"}
	}
	if err != nil {
		return nil, &LoadError{Path: path, Code: ErrCodeGeneric, Message: fmt.Sprintf("failed to read scenario file: %v", err)}
	}

	return DecodeScenario(data, path)
}

// DecodeScenario decodes a scenario document. name is used for error
// messages and its extension selects the format.
func DecodeScenario(data []byte, name string) (*ir.Scenario, error) {
	var sc ir.Scenario
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".yaml", ".yml":
		if err := decodeYAML(data, &sc); err != nil {
			return nil, &LoadError{Path: name, Code: ErrCodeParseFailed, Message: fmt.Sprintf("failed to parse YAML: %v", err)}
		}
	case ".json":
		if err := decodeJSON(data, &sc); err != nil {
			return nil, &LoadError{Path: name, Code: ErrCodeParseFailed, Message: fmt.Sprintf("failed to parse JSON: %v", err)}
		}
	case ".cue":
		js, err := cueToJSON(data, name)
		if err != nil {
			return nil, err
		}
		if err := decodeJSON(js, &sc); err != nil {
			return nil, &LoadError{Path: name, Code: ErrCodeParseFailed, Message: fmt.Sprintf("failed to decode CUE value: %v", err)}
		}
	default:
		return nil, &LoadError{Path: name, Code: ErrCodeFormat, Message: fmt.Sprintf("unsupported extension %q", ext)}
	}
	return &sc, nil
}

func decodeYAML(data []byte, sc *ir.Scenario) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields
	if err := dec.Decode(sc); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty document")
		}
		return err
	}
	return nil
}

func decodeJSON(data []byte, sc *ir.Scenario) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(sc); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty document")
		}
		return err
	}
	if dec.More() {
		return errors.New("trailing data after scenario")
	}
	return nil
}

// FindScenarioFiles walks dir and returns the scenario files it contains,
// in lexical order.
func FindScenarioFiles(fsys afero.Fs, dir string) ([]string, error) {
	var files []string
	err := afero.Walk(fsys, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && slices.Contains(Extensions, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	slices.Sort(files)
	return files, err
}

// LoadScenarios loads every scenario file under dir. Files that fail to
// load are reported in the returned errors; the others are still loaded.
func LoadScenarios(fsys afero.Fs, dir string) ([]*ir.Scenario, []error) {
	info, err := fsys.Stat(dir)
	if err != nil {
		return nil, []error{&LoadError{Path: dir, Code: ErrCodeNotFound, Message: "scenario directory not found"}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Path: dir, Code: ErrCodeNotFound, Message: "not a directory"}}
	}

	files, err := FindScenarioFiles(fsys, dir)
	if err != nil {
		return nil, []error{&LoadError{Path: dir, Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Path: dir, Code: ErrCodeNoFiles, Message: "no scenario files found"}}
	}

	var scenarios []*ir.Scenario
	var errs []error
	for _, f := range files {
		sc, err := LoadScenario(fsys, f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, errs
}
