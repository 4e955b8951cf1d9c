package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/asyncdb/internal/asyncdb"
	"github.com/roach88/asyncdb/internal/engine"
)

// NewDropCommand creates the drop command.
func NewDropCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <database>",
		Short: "Delete a database and all of its tables",
		Long: `Delete a database. Dropping a database that does not exist succeeds.

Example:
  asyncdb drop CustomersDB`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			s, err := startSession(ctx, rootOpts, cmd)
			if err != nil {
				return out.Fail(err)
			}
			defer s.Close()

			oldVersion, err := s.drop(ctx, args[0])
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(dropResult{Database: args[0], OldVersion: oldVersion})
		},
	}
}

type dropResult struct {
	Database   string `json:"database"`
	OldVersion uint64 `json:"old_version"`
}

func (r dropResult) String() string {
	return fmt.Sprintf("✓ dropped %s (was version %d)", r.Database, r.OldVersion)
}

// drop deletes the database and waits for the engine to finish. The
// handle's DropDatabase does not report completion, and the loop stops
// once the command returns.
func (s *session) drop(ctx context.Context, name string) (uint64, error) {
	type outcome struct {
		version uint64
		err     error
	}
	done := make(chan outcome, 1)
	posted := s.factory.Post(func() {
		req := s.factory.DeleteDatabase(name)
		req.OnSuccess(func(oldVersion uint64) {
			done <- outcome{version: oldVersion}
		})
		req.OnError(func(err *engine.Error) {
			done <- outcome{err: &asyncdb.Error{Kind: asyncdb.KindConnection, Op: "drop", Err: err}}
		})
	})
	if !posted {
		return 0, &asyncdb.Error{Kind: asyncdb.KindConnection, Op: "drop", Message: "storage engine is not running"}
	}
	select {
	case o := <-done:
		return o.version, o.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
