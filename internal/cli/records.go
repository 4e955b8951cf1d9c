package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/asyncdb/internal/asyncdb"
	"github.com/roach88/asyncdb/internal/queryir"
	"github.com/roach88/asyncdb/internal/record"
)

// NewOpenCommand creates the open command.
func NewOpenCommand(rootOpts *RootOptions) *cobra.Command {
	var schemaPath string
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a database, migrating it to the schema's version",
		Long: `Open the database named by a schema file, creating its tables when the
stored version is lower than the schema's.

Example:
  asyncdb open --schema customers.cue`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, schemaPath, func(ctx context.Context, s *session) (any, error) {
				return openResult{
					Database: s.handle.Name(),
					Version:  s.handle.Version(),
					Tables:   s.handle.Tables(),
				}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "schema file or CUE package directory")
	return cmd
}

type openResult struct {
	Database string              `json:"database"`
	Version  uint64              `json:"version"`
	Tables   []asyncdb.TableSpec `json:"tables"`
}

func (r openResult) String() string {
	return fmt.Sprintf("✓ opened %s at version %d (%d tables)", r.Database, r.Version, len(r.Tables))
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	var schemaPath, data, file string
	cmd := &cobra.Command{
		Use:   "insert <table>",
		Short: "Insert records in one transaction",
		Long: `Insert a JSON array of records, in order, in a single transaction.
If any record is rejected nothing is written.

Example:
  asyncdb insert customers --schema customers.cue --data '[{"name":"Alice"}]'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := args[0]
			return withSession(rootOpts, cmd, schemaPath, func(ctx context.Context, s *session) (any, error) {
				raw := data
				if file != "" {
					b, err := os.ReadFile(file)
					if err != nil {
						return nil, badInput("--file: %v", err)
					}
					raw = string(b)
				}
				if raw == "" {
					return nil, badInput("one of --data or --file is required")
				}
				recs, err := parseRecords("data", raw)
				if err != nil {
					return nil, err
				}
				if _, err := s.handle.InsertMany(ctx, table, recs).Await(ctx); err != nil {
					return nil, err
				}
				return countResult{Table: table, Action: "inserted", Count: len(recs)}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "schema file or CUE package directory")
	cmd.Flags().StringVar(&data, "data", "", "records as a JSON array")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read records from a JSON file")
	return cmd
}

type countResult struct {
	Table  string `json:"table"`
	Action string `json:"action"`
	Count  int    `json:"count"`
}

func (r countResult) String() string {
	return fmt.Sprintf("✓ %s %d record(s) in %s", r.Action, r.Count, r.Table)
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var schemaPath string
	var limit int
	var rf rangeFlags
	cmd := &cobra.Command{
		Use:   "list <table>",
		Short: "List records in primary key order",
		Long: `List the records of a table in primary key order, optionally bounded
by a key range and capped by --limit.

Example:
  asyncdb list customers --schema customers.cue --lower 2 --limit 10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := args[0]
			return withSession(rootOpts, cmd, schemaPath, func(ctx context.Context, s *session) (any, error) {
				rng, err := rf.keyRange()
				if err != nil {
					return nil, err
				}
				if limit < 0 {
					return nil, badInput("--limit must not be negative")
				}
				recs, err := s.handle.GetAll(ctx, table, asyncdb.WithRange(rng), asyncdb.WithLimit(limit)).Await(ctx)
				if err != nil {
					return nil, err
				}
				return recordList{Table: table, Count: len(recs), Records: recs}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "schema file or CUE package directory")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum records (0 = all)")
	rf.register(cmd)
	return cmd
}

// NewRangeCommand creates the range command.
func NewRangeCommand(rootOpts *RootOptions) *cobra.Command {
	var schemaPath, direction string
	var rf rangeFlags
	cmd := &cobra.Command{
		Use:   "range <table> <index>",
		Short: "Read records in index order with a cursor",
		Long: `Read the records of a table through one of its indices, in index key
order, optionally bounded by a key range.

Directions: next, nextunique, prev, prevunique.

Example:
  asyncdb range customers age --schema customers.cue --lower 20 --upper 30`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, index := args[0], args[1]
			return withSession(rootOpts, cmd, schemaPath, func(ctx context.Context, s *session) (any, error) {
				rng, err := rf.keyRange()
				if err != nil {
					return nil, err
				}
				dir, err := queryir.ParseDirection(direction)
				if err != nil {
					return nil, badInput("--direction: %v", err)
				}
				recs, err := s.handle.GetOrderedRange(ctx, table, index, asyncdb.WithRange(rng), asyncdb.WithDirection(dir)).Await(ctx)
				if err != nil {
					return nil, err
				}
				return recordList{Table: table, Index: index, Count: len(recs), Records: recs}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "schema file or CUE package directory")
	cmd.Flags().StringVar(&direction, "direction", "next", "cursor direction")
	rf.register(cmd)
	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var schemaPath, set string
	cmd := &cobra.Command{
		Use:   "update <table> <key>",
		Short: "Merge fields into the record stored under a key",
		Long: `Shallow-merge a JSON object into an existing record. Fails with E305 if
no record is stored under the key.

Example:
  asyncdb update customers 1 --schema customers.cue --set '{"age":31}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := args[0]
			return withSession(rootOpts, cmd, schemaPath, func(ctx context.Context, s *session) (any, error) {
				key, err := parseKey(args[1])
				if err != nil {
					return nil, err
				}
				patch, err := parseObject("set", set)
				if err != nil {
					return nil, err
				}
				if _, err := s.handle.UpdateByKey(ctx, table, key, patch).Await(ctx); err != nil {
					return nil, err
				}
				return countResult{Table: table, Action: "updated", Count: 1}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "schema file or CUE package directory")
	cmd.Flags().StringVar(&set, "set", "{}", "fields to merge as a JSON object")
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var schemaPath string
	cmd := &cobra.Command{
		Use:   "delete <table> <key>",
		Short: "Delete the record stored under a key",
		Long: `Delete one record. Fails with E305 if no record is stored under the key.

Example:
  asyncdb delete customers 1 --schema customers.cue`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := args[0]
			return withSession(rootOpts, cmd, schemaPath, func(ctx context.Context, s *session) (any, error) {
				key, err := parseKey(args[1])
				if err != nil {
					return nil, err
				}
				if _, err := s.handle.DeleteByKey(ctx, table, key).Await(ctx); err != nil {
					return nil, err
				}
				return countResult{Table: table, Action: "deleted", Count: 1}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "schema file or CUE package directory")
	return cmd
}

// NewUpsertCommand creates the upsert command.
func NewUpsertCommand(rootOpts *RootOptions) *cobra.Command {
	var schemaPath, rec, key string
	cmd := &cobra.Command{
		Use:   "upsert <table>",
		Short: "Insert or replace a record",
		Long: `Write a record, replacing any record stored under the same key. Tables
without a key path take the key from --key.

Example:
  asyncdb upsert settings --schema app.cue --key theme --record '{"value":"dark"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := args[0]
			return withSession(rootOpts, cmd, schemaPath, func(ctx context.Context, s *session) (any, error) {
				obj, err := parseObject("record", rec)
				if err != nil {
					return nil, err
				}
				var k record.Key
				if key != "" {
					if k, err = parseKey(key); err != nil {
						return nil, err
					}
				}
				if _, err := s.handle.Upsert(ctx, table, obj, k).Await(ctx); err != nil {
					return nil, err
				}
				return countResult{Table: table, Action: "upserted", Count: 1}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "schema file or CUE package directory")
	cmd.Flags().StringVar(&rec, "record", "", "record as a JSON object")
	cmd.Flags().StringVar(&key, "key", "", "out-of-line key (JSON, or a bare string)")
	return cmd
}
