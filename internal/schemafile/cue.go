package schemafile

import (
	_ "embed"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"

	"github.com/roach88/asyncdb/internal/asyncdb"
)

//go:embed schema.cue
var schemaDefinition string

// LoadCUEDir loads the CUE package in dir.
func LoadCUEDir(dir string) (*Schema, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &Error{Code: CodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &Error{Code: CodeLoadFailed, Message: "loading CUE files: " + inst.Err.Error()}
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(inst)
	return compile(ctx, v)
}

// CompileCUE compiles CUE source. filename is only used in positions.
func CompileCUE(filename string, src []byte) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	return compile(ctx, v)
}

func compile(ctx *cue.Context, v cue.Value) (*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err, CodeBuildFailed)
	}
	def := ctx.CompileString(schemaDefinition, cue.Filename("schema.cue"))
	if err := def.Err(); err != nil {
		return nil, formatCUEError(err, CodeGeneric)
	}
	v = def.LookupPath(cue.ParsePath("#Schema")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err, CodeBuildFailed)
	}
	return CompileSchema(v)
}

// CompileSchema extracts a Schema from a CUE value that has already been
// unified with #Schema.
func CompileSchema(v cue.Value) (*Schema, error) {
	s := &Schema{}
	var err error

	if s.Database, err = v.LookupPath(cue.ParsePath("database")).String(); err != nil {
		return nil, formatCUEError(err, CodeDatabase)
	}
	if s.Version, err = v.LookupPath(cue.ParsePath("version")).Uint64(); err != nil {
		return nil, formatCUEError(err, CodeBuildFailed)
	}

	tables, err := v.LookupPath(cue.ParsePath("table")).Fields()
	if err != nil {
		return nil, formatCUEError(err, CodeBuildFailed)
	}
	for tables.Next() {
		spec, err := compileTable(tables.Label(), tables.Value())
		if err != nil {
			return nil, err
		}
		s.Tables = append(s.Tables, spec)
	}
	return s, nil
}

func compileTable(name string, v cue.Value) (asyncdb.TableSpec, error) {
	spec := asyncdb.TableSpec{Name: name}
	var err error

	if spec.KeyPath, err = v.LookupPath(cue.ParsePath("keyPath")).String(); err != nil {
		return spec, formatCUEError(err, CodeKeyPath)
	}
	if spec.AutoIncrement, err = v.LookupPath(cue.ParsePath("autoIncrement")).Bool(); err != nil {
		return spec, formatCUEError(err, CodeBuildFailed)
	}

	indices, err := v.LookupPath(cue.ParsePath("index")).Fields()
	if err != nil {
		return spec, formatCUEError(err, CodeBuildFailed)
	}
	for indices.Next() {
		iv := indices.Value()
		idx := asyncdb.IndexSpec{Name: indices.Label()}
		if idx.KeyPath, err = iv.LookupPath(cue.ParsePath("keyPath")).String(); err != nil {
			return spec, formatCUEError(err, CodeKeyPath)
		}
		if idx.Unique, err = iv.LookupPath(cue.ParsePath("unique")).Bool(); err != nil {
			return spec, formatCUEError(err, CodeBuildFailed)
		}
		spec.Indices = append(spec.Indices, idx)
	}
	return spec, nil
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error, code string) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Code: code, Message: err.Error()}
	}
	first := errs[0]
	out := &Error{Code: code, Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		out.Pos = positions[0]
	}
	return out
}
