package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/roach88/asyncdb/internal/store"
)

// Config selects where and how the engine stores databases.
type Config struct {
	// Driver is the database/sql driver name: "sqlite3" or "sqlite".
	Driver string

	// Dir holds one SQLite file per database. Empty keeps databases in
	// memory for the lifetime of the process.
	Dir string

	// Codec compresses stored values.
	Codec store.Codec
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) {
		f.log = l
	}
}

// WithIDGenerator sets the generator for connection and transaction IDs.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(f *Factory) {
		f.ids = g
	}
}

// Factory is the engine entry point: it owns the event loop and every open
// database.
//
// Thread-safety model:
//   - Post(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Everything else: loop goroutine only (inside a posted task or callback)
type Factory struct {
	cfg   store.Config
	log   *slog.Logger
	ids   IDGenerator
	clock *Clock
	queue *taskQueue

	// Loop-confined state.
	ctx  context.Context
	live []*Transaction
	dbs  map[string]*dbState

	// stopping is set once Run has returned; overflow holds follow-up
	// tasks the closed queue refused, run by shutdown.
	stopping bool
	overflow []func()
}

// job is one unit of per-database work. run must call done exactly once when
// finished so the next job can start. cancel settles the job's request when
// the engine stops before run is reached.
type job struct {
	run    func(done func())
	cancel func(err *Error)
}

// dbState tracks one database name: its storage, open connections and the
// FIFO of pending jobs.
type dbState struct {
	name  string
	store *store.Store
	conns []*Database
	jobs  []job
	busy  bool
}

// NewFactory creates a Factory. Run must be started before any task runs.
func NewFactory(cfg Config, opts ...Option) (*Factory, error) {
	sc := store.Config{Driver: cfg.Driver, Dir: cfg.Dir, Codec: cfg.Codec}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("new factory: %w", err)
	}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("new factory: create data dir: %w", err)
		}
	}

	f := &Factory{
		cfg:   sc,
		log:   slog.Default(),
		ids:   UUIDv7Generator{},
		clock: NewClock(),
		queue: newTaskQueue(),
		ctx:   context.Background(),
		dbs:   make(map[string]*dbState),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Post queues fn to run on the loop goroutine.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the factory has been stopped.
func (f *Factory) Post(fn func()) bool {
	return f.queue.Enqueue(fn)
}

// Run executes tasks on the calling goroutine, which becomes the loop
// goroutine, until ctx is cancelled or Stop is called. Call it once.
//
// After Stop, tasks already queued still run. On exit every unfinished
// transaction aborts with AbortError, every job still waiting for its
// database fails, and every database is closed. Their callbacks run before
// Run returns.
func (f *Factory) Run(ctx context.Context) error {
	f.ctx = ctx
	f.log.Info("engine starting", "driver", f.cfg.Driver, "dir", f.cfg.Dir, "codec", f.cfg.Codec.String())
	defer f.shutdown()

	for {
		task, ok := f.queue.TryDequeue()
		if ok {
			task()
			f.settle()
			continue
		}

		select {
		case <-ctx.Done():
			f.log.Info("engine stopping: context cancelled")
			f.queue.Close()
			return ctx.Err()

		case <-f.queue.Wait():
			// A closed queue keeps this case ready; leave once it drained.
			if f.queue.Closed() && f.queue.Len() == 0 {
				f.log.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop refuses further Posts. Run returns after the queued tasks ran and
// shutdown settled everything left.
func (f *Factory) Stop() {
	f.queue.Close()
}

// enqueue schedules a follow-up task from inside the loop. Once the queue
// is closed the task is kept for shutdown instead.
func (f *Factory) enqueue(fn func()) {
	if !f.queue.Enqueue(fn) {
		f.overflow = append(f.overflow, fn)
	}
}

// settle runs after every task: it ends the active window of every
// transaction and lets each one make progress.
func (f *Factory) settle() {
	for _, tx := range f.live {
		tx.active = false
	}
	for _, tx := range slices.Clone(f.live) {
		tx.advance()
	}
}

func (f *Factory) removeLive(tx *Transaction) {
	f.live = slices.DeleteFunc(f.live, func(t *Transaction) bool { return t == tx })
}

const maxShutdownRounds = 1000

// shutdown settles everything still pending so no callback is lost: tasks
// left in the queue run, live transactions abort, queued jobs are cancelled,
// and the callbacks these produce run inline until none remain.
func (f *Factory) shutdown() {
	f.stopping = true
	f.queue.Close()
	for {
		task, ok := f.queue.TryDequeue()
		if !ok {
			break
		}
		f.overflow = append(f.overflow, task)
	}

	stopped := stoppedError(AbortError)
	for round := 0; ; round++ {
		if round == maxShutdownRounds {
			f.log.Warn("shutdown gave up on callbacks that keep scheduling work", "tasks", len(f.overflow))
			break
		}
		for _, tx := range slices.Clone(f.live) {
			tx.abort(stopped)
		}
		for _, ds := range f.dbs {
			jobs := ds.jobs
			ds.jobs = nil
			for _, j := range jobs {
				j.cancel(stoppedError(InvalidStateError))
			}
		}
		if len(f.overflow) == 0 && len(f.live) == 0 {
			break
		}
		tasks := f.overflow
		f.overflow = nil
		for _, task := range tasks {
			task()
		}
	}

	for name, ds := range f.dbs {
		if ds.store != nil {
			if err := ds.store.Close(); err != nil {
				f.log.Warn("close database on shutdown failed", "database", name, "error", err)
			}
		}
	}
	f.dbs = make(map[string]*dbState)
}

// database returns the state for name, creating it on first use.
func (f *Factory) database(name string) *dbState {
	ds, ok := f.dbs[name]
	if !ok {
		ds = &dbState{name: name}
		f.dbs[name] = ds
	}
	return ds
}

// schedule appends a job to the database's FIFO. A stopping engine cancels
// it at once.
func (f *Factory) schedule(ds *dbState, j job) {
	if f.stopping {
		j.cancel(stoppedError(InvalidStateError))
		return
	}
	ds.jobs = append(ds.jobs, j)
	f.startNext(ds)
}

func (f *Factory) startNext(ds *dbState) {
	if f.stopping || ds.busy || len(ds.jobs) == 0 {
		return
	}
	j := ds.jobs[0]
	ds.jobs[0] = job{}
	ds.jobs = ds.jobs[1:]
	ds.busy = true

	var finished bool
	done := func() {
		if finished {
			return
		}
		finished = true
		ds.busy = false
		f.release(ds)
		f.startNext(ds)
	}
	f.enqueue(func() {
		if f.stopping {
			j.cancel(stoppedError(InvalidStateError))
			done()
			return
		}
		j.run(done)
	})
}

// acquire opens the database's storage if needed.
func (f *Factory) acquire(ds *dbState) (*store.Store, error) {
	if ds.store != nil {
		return ds.store, nil
	}
	s, err := store.Open(f.ctx, f.cfg, ds.name)
	if err != nil {
		return nil, err
	}
	ds.store = s
	return s, nil
}

// release closes the database's storage once nothing uses it.
func (f *Factory) release(ds *dbState) {
	if ds.busy || len(ds.jobs) > 0 || len(ds.conns) > 0 {
		return
	}
	// In-memory databases live as long as the factory.
	if f.cfg.Dir == "" {
		return
	}
	if ds.store != nil {
		if err := ds.store.Close(); err != nil {
			f.log.Warn("close database failed", "database", ds.name, "error", err)
		}
		ds.store = nil
	}
	if f.dbs[ds.name] == ds {
		delete(f.dbs, ds.name)
	}
}
