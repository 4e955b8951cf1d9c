package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/asyncdb/internal/asyncdb"
	"github.com/roach88/asyncdb/internal/schemafile"
)

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect schema files",
	}
	cmd.AddCommand(newSchemaValidateCommand(rootOpts))
	return cmd
}

func newSchemaValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <schema>",
		Short: "Validate a CUE or YAML schema without opening it",
		Long: `Validate a schema file (.cue, .yaml, .yml) or CUE package directory.

Reports every problem found: missing names, duplicate tables or indices,
and malformed key paths.

Example:
  asyncdb schema validate customers.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			schema, err := schemafile.Load(args[0])
			if err != nil {
				return out.Fail(err)
			}
			out.VerboseLog("loaded %s: %d table(s)", args[0], len(schema.Tables))
			return out.Success(schemaSummary(*schema))
		},
	}
}

// schemaSummary prints a schema as one line per table.
type schemaSummary schemafile.Schema

func (s schemaSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ %s v%d valid (%d tables)", s.Database, s.Version, len(s.Tables))
	for _, t := range s.Tables {
		b.WriteString("\n  " + describeTable(t))
	}
	return b.String()
}

func describeTable(t asyncdb.TableSpec) string {
	var b strings.Builder
	b.WriteString(t.Name)
	switch {
	case t.KeyPath != "" && t.AutoIncrement:
		fmt.Fprintf(&b, " key=%s (auto)", t.KeyPath)
	case t.KeyPath != "":
		fmt.Fprintf(&b, " key=%s", t.KeyPath)
	case t.AutoIncrement:
		b.WriteString(" key=(generated)")
	default:
		b.WriteString(" key=(out-of-line)")
	}
	for _, idx := range t.Indices {
		fmt.Fprintf(&b, " [%s:%s", idx.Name, idx.KeyPath)
		if idx.Unique {
			b.WriteString(" unique")
		}
		b.WriteString("]")
	}
	return b.String()
}
