package schemafile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/asyncdb/internal/asyncdb"
)

var customersSchema = &Schema{
	Database: "CustomersDB",
	Version:  1,
	Tables: []asyncdb.TableSpec{
		{
			Name:          "customers",
			KeyPath:       "id",
			AutoIncrement: true,
			Indices: []asyncdb.IndexSpec{
				{Name: "name", KeyPath: "name"},
				{Name: "email", KeyPath: "email", Unique: true},
			},
		},
		{
			Name:    "orders",
			KeyPath: "orderId",
			Indices: []asyncdb.IndexSpec{{Name: "customer", KeyPath: "customerId"}},
		},
	},
}

func TestLoad_CUEFile(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "customers.cue"))
	require.NoError(t, err)
	assert.Equal(t, customersSchema, s)
}

func TestLoad_YAMLFile(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "customers.yaml"))
	require.NoError(t, err)
	assert.Equal(t, customersSchema, s)
}

func TestLoad_CUEPackageDir(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "pkg"))
	require.NoError(t, err)
	assert.Equal(t, &Schema{
		Database: "Inventory",
		Version:  3,
		Tables: []asyncdb.TableSpec{{
			Name:    "items",
			KeyPath: "sku",
			Indices: []asyncdb.IndexSpec{{Name: "by_bin", KeyPath: "location.bin"}},
		}},
	}, s)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "missing.cue"))
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeNotFound, se.Code)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	writeFile(t, path, `{}`)

	_, err := Load(path)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeLoadFailed, se.Code)
}

func TestCompileCUE_Defaults(t *testing.T) {
	s, err := CompileCUE("inline.cue", []byte(`
		database: "d"
		table: t: {}
	`))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s.Version)
	assert.Equal(t, []asyncdb.TableSpec{{Name: "t"}}, s.Tables)
}

func TestCompileCUE_RejectsUnknownField(t *testing.T) {
	_, err := CompileCUE("inline.cue", []byte(`
		database: "d"
		table: t: {keyPth: "id"}
	`))
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeBuildFailed, se.Code)
}

func TestCompileCUE_RejectsEmptyIndexKeyPath(t *testing.T) {
	_, err := CompileCUE("inline.cue", []byte(`
		database: "d"
		table: t: index: i: keyPath: ""
	`))
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeBuildFailed, se.Code)
}

func TestCompileCUE_RejectsWrongType(t *testing.T) {
	_, err := CompileCUE("inline.cue", []byte(`
		database: "d"
		version: "two"
		table: t: {}
	`))
	require.Error(t, err)
}

func TestCompileCUE_SyntaxErrorHasPosition(t *testing.T) {
	_, err := CompileCUE("broken.cue", []byte("database: \"d\"\ntable: {"))
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Pos.IsValid())
	assert.Contains(t, se.Error(), "broken.cue")
}

func TestParseYAML_RejectsUnknownField(t *testing.T) {
	_, err := ParseYAML([]byte("database: d\ntables:\n  - name: t\n    keypath: id\n"))
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeLoadFailed, se.Code)
}

func TestParseYAML_Empty(t *testing.T) {
	_, err := ParseYAML(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty schema file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		schema Schema
		codes  []string
	}{
		{
			name:   "valid",
			schema: *customersSchema,
		},
		{
			name:   "missing database",
			schema: Schema{Tables: []asyncdb.TableSpec{{Name: "t"}}},
			codes:  []string{CodeDatabase},
		},
		{
			name:   "no tables",
			schema: Schema{Database: "d"},
			codes:  []string{CodeNoTables},
		},
		{
			name: "table without name",
			schema: Schema{Database: "d", Tables: []asyncdb.TableSpec{
				{KeyPath: "id"},
			}},
			codes: []string{CodeTableName},
		},
		{
			name: "duplicate table",
			schema: Schema{Database: "d", Tables: []asyncdb.TableSpec{
				{Name: "t"}, {Name: "t"},
			}},
			codes: []string{CodeTableName},
		},
		{
			name: "bad key path",
			schema: Schema{Database: "d", Tables: []asyncdb.TableSpec{
				{Name: "t", KeyPath: "a..b"},
			}},
			codes: []string{CodeKeyPath},
		},
		{
			name: "index problems",
			schema: Schema{Database: "d", Tables: []asyncdb.TableSpec{
				{Name: "t", Indices: []asyncdb.IndexSpec{
					{Name: "i", KeyPath: "x"},
					{Name: "i", KeyPath: "y"},
					{Name: "j"},
					{Name: "k", KeyPath: ".z"},
				}},
			}},
			codes: []string{CodeIndexName, CodeIndexName, CodeKeyPath},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(&tt.schema)
			var codes []string
			for _, err := range errs {
				var se *Error
				require.ErrorAs(t, err, &se)
				codes = append(codes, se.Code)
			}
			assert.Equal(t, tt.codes, codes)
		})
	}
}

func TestLoad_ReportsAllValidationErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "version: 2\ntables:\n  - keyPath: id\n  - name: t\n    indices:\n      - name: i\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database name is required")
	assert.Contains(t, err.Error(), "name required")
	assert.Contains(t, err.Error(), "index requires name and keyPath")
}
