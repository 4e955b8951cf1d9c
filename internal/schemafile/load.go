package schemafile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Load reads a schema from path and validates it. Directories are loaded as
// CUE packages; files are parsed by extension (.cue, .yaml, .yml).
//
// On validation failure every problem is returned, joined.
func Load(path string) (*Schema, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("schema not found: %s", path)}
	}
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("error accessing schema: %v", err)}
	}

	var s *Schema
	if info.IsDir() {
		s, err = LoadCUEDir(path)
	} else {
		s, err = loadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if errs := Validate(s); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

func loadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Code: CodeLoadFailed, Message: err.Error()}
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		return CompileCUE(path, data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return nil, &Error{Code: CodeLoadFailed, Message: fmt.Sprintf("unsupported schema file extension %q", ext)}
	}
}
