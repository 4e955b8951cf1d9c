package schemafile

import (
	"fmt"

	"cuelang.org/go/cue/token"

	"github.com/roach88/asyncdb/internal/asyncdb"
	"github.com/roach88/asyncdb/internal/record"
)

// Schema is a loaded schema file.
type Schema struct {
	Database string              `json:"database" yaml:"database"`
	Version  uint64              `json:"version" yaml:"version"`
	Tables   []asyncdb.TableSpec `json:"tables" yaml:"tables"`
}

// Error is a schema problem, with a source position when known.
type Error struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Code, e.Field, e.Message)
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
}

// Error codes.
const (
	CodeGeneric     = "E001" // Generic/unknown error
	CodeNotFound    = "E005" // Path not found
	CodeLoadFailed  = "E004" // CUE or YAML load failed
	CodeBuildFailed = "E006" // CUE build or type check failed
	CodeDatabase    = "E201" // Missing database name
	CodeTableName   = "E202" // Missing or duplicate table name
	CodeIndexName   = "E203" // Missing or duplicate index name
	CodeKeyPath     = "E204" // Invalid key path
	CodeNoTables    = "E205" // No tables declared
)

// Validate checks s and returns every problem found.
func Validate(s *Schema) []error {
	var errs []error
	add := func(code, field, format string, args ...any) {
		errs = append(errs, &Error{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if s.Database == "" {
		add(CodeDatabase, "database", "database name is required")
	}
	if len(s.Tables) == 0 {
		add(CodeNoTables, "tables", "at least one table is required")
	}

	tables := make(map[string]bool, len(s.Tables))
	for i, t := range s.Tables {
		field := fmt.Sprintf("tables[%d]", i)
		if t.Name == "" {
			add(CodeTableName, field, "name required")
		} else {
			field = "table " + t.Name
			if tables[t.Name] {
				add(CodeTableName, field, "duplicate table name")
			}
			tables[t.Name] = true
		}
		if t.KeyPath != "" {
			if err := record.ValidateKeyPath(t.KeyPath); err != nil {
				add(CodeKeyPath, field+".keyPath", "%v", err)
			}
		}

		indices := make(map[string]bool, len(t.Indices))
		for j, idx := range t.Indices {
			ifield := fmt.Sprintf("%s.indices[%d]", field, j)
			if idx.Name == "" || idx.KeyPath == "" {
				add(CodeIndexName, ifield, "index requires name and keyPath")
				continue
			}
			if indices[idx.Name] {
				add(CodeIndexName, ifield, "duplicate index name %q", idx.Name)
			}
			indices[idx.Name] = true
			if err := record.ValidateKeyPath(idx.KeyPath); err != nil {
				add(CodeKeyPath, ifield+".keyPath", "%v", err)
			}
		}
	}
	return errs
}
