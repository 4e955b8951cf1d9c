package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/asyncdb/internal/asyncdb"
	"github.com/roach88/asyncdb/internal/config"
	"github.com/roach88/asyncdb/internal/engine"
	"github.com/roach88/asyncdb/internal/schemafile"
	"github.com/roach88/asyncdb/internal/telemetry"
)

// session is one engine loop plus a handle, alive for a single command.
type session struct {
	cfg     config.Config
	log     *slog.Logger
	factory *engine.Factory
	handle  *asyncdb.Handle

	cancel   context.CancelFunc
	stopped  chan struct{}
	shutdown func(context.Context) error
}

// resolveConfig loads the config file and environment, then applies flags
// the user set explicitly.
func resolveConfig(opts *RootOptions, cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return cfg, &configError{err: err}
	}
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = opts.DataDir
	}
	if flags.Changed("driver") {
		cfg.Driver = opts.Driver
	}
	if flags.Changed("compression") {
		cfg.Compression = opts.Compression
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return cfg, &configError{err: err}
	}
	return cfg, nil
}

func startSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*session, error) {
	cfg, err := resolveConfig(opts, cmd)
	if err != nil {
		return nil, err
	}
	level, _ := cfg.Level()
	if !opts.Verbose && level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	shutdown, err := telemetry.Setup(ctx, cfg.OTelEndpoint, cfg.ServiceName)
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}

	ec, err := cfg.Engine()
	if err != nil {
		return nil, &configError{err: err}
	}
	f, err := engine.NewFactory(ec, engine.WithLogger(log))
	if err != nil {
		return nil, &configError{err: err}
	}
	h, err := asyncdb.New(f, asyncdb.WithLogger(log))
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		cfg:      cfg,
		log:      log,
		factory:  f,
		handle:   h,
		cancel:   cancel,
		stopped:  make(chan struct{}),
		shutdown: shutdown,
	}
	go func() {
		defer close(s.stopped)
		f.Run(loopCtx)
	}()
	return s, nil
}

// open loads the schema at path and opens its database, migrating as
// needed.
func (s *session) open(ctx context.Context, path string) (*schemafile.Schema, error) {
	if path == "" {
		return nil, badInput("--schema is required")
	}
	schema, err := schemafile.Load(path)
	if err != nil {
		return nil, err
	}
	if _, err := s.handle.Open(ctx, schema.Database, schema.Version, schema.Tables).Await(ctx); err != nil {
		return nil, err
	}
	return schema, nil
}

// Close releases the handle, drains the loop and flushes traces.
func (s *session) Close() {
	if err := s.handle.Close(); err != nil {
		s.log.Warn("close handle", "error", err)
	}
	s.factory.Stop()
	select {
	case <-s.stopped:
	case <-time.After(10 * time.Second):
		s.log.Warn("engine loop did not stop; cancelling")
		s.cancel()
		<-s.stopped
	}
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.shutdown != nil {
		if err := s.shutdown(ctx); err != nil {
			s.log.Warn("flush traces", "error", err)
		}
	}
}

// withSession runs fn with a session whose handle is open on the schema at
// schemaPath, reporting any failure through the formatter.
func withSession(opts *RootOptions, cmd *cobra.Command, schemaPath string, fn func(ctx context.Context, s *session) (any, error)) error {
	out := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := startSession(ctx, opts, cmd)
	if err != nil {
		return out.Fail(err)
	}
	defer s.Close()

	schema, err := s.open(ctx, schemaPath)
	if err != nil {
		return out.Fail(err)
	}
	out.VerboseLog("opened %s at version %d", schema.Database, s.handle.Version())

	result, err := fn(ctx, s)
	if err != nil {
		return out.Fail(err)
	}
	return out.Success(result)
}
