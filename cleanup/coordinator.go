// Package cleanup reclaims the on-disk storage of checkouts that are not
// owned by the cache store.
//
// A bypass-path checkout (non-read-only, or pinned to a mutable ref) is
// handed to the [Coordinator] as soon as it is materialized. Exactly one of
// three triggers later reclaims it:
//
//   - scoped disposal, when the request carries a lifecycle handle;
//   - an idle timeout, when it does not;
//   - the shutdown flush, when the process terminates first.
//
// The coordinator is constructed explicitly and injected; the composition
// root calls [Coordinator.FlushAll] once at termination rather than relying
// on ambient global registration.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/go/errors"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultIdleTimeout is how long an unscoped checkout may sit idle
	// before its storage is reclaimed.
	DefaultIdleTimeout = 10 * time.Second

	// DefaultFlushTimeout bounds how long FlushAll blocks process
	// termination.
	DefaultFlushTimeout = 10 * time.Second
)

// Coordinator tracks pending checkout directories and reclaims them.
// All methods are safe for concurrent use.
type Coordinator struct {
	fs           billy.Filesystem
	log          *slog.Logger
	idleTimeout  time.Duration
	flushTimeout time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timers  map[string]*time.Timer
}

// Option configures coordinator construction.
type Option func(*Coordinator)

// WithFilesystem sets the billy filesystem used for existence checks and
// removal. Defaults to the local filesystem rooted at /.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(c *Coordinator) {
		c.fs = fs
	}
}

// WithLogger sets the logger for reclamation diagnostics. Reclamation
// failures are logged, never raised.
func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) {
		c.log = log
	}
}

// WithIdleTimeout overrides [DefaultIdleTimeout].
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.idleTimeout = d
	}
}

// WithFlushTimeout overrides [DefaultFlushTimeout].
func WithFlushTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.flushTimeout = d
	}
}

// New creates a coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		fs:           osfs.New("/"),
		log:          slog.New(slog.DiscardHandler),
		idleTimeout:  DefaultIdleTimeout,
		flushTimeout: DefaultFlushTimeout,
		pending:      make(map[string]struct{}),
		timers:       make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterPending records a path for reclamation at shutdown. Registering
// the same path twice is a no-op.
func (c *Coordinator) RegisterPending(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[path] = struct{}{}
}

// ScheduleIdle records the path as pending and schedules its reclamation
// after the idle timeout. The scheduled task is cancelled if the path is
// reclaimed earlier through another trigger, so a checkout is never deleted
// twice.
//
// The timer runs fire-and-forget: it never blocks the request that created
// the checkout, and its outcome does not gate process exit.
func (c *Coordinator) ScheduleIdle(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending[path] = struct{}{}
	if _, ok := c.timers[path]; ok {
		return
	}
	c.timers[path] = time.AfterFunc(c.idleTimeout, func() {
		c.Reclaim(path)
	})
}

// Reclaim releases a checkout's backing storage: if the path exists it is
// removed recursively, any scheduled idle task for it is cancelled, and it
// is dropped from the pending set. Removal failures are logged as warnings,
// never raised, never retried. Reclaiming an absent path is a no-op.
func (c *Coordinator) Reclaim(path string) {
	c.mu.Lock()
	if t, ok := c.timers[path]; ok {
		t.Stop()
		delete(c.timers, path)
	}
	delete(c.pending, path)
	c.mu.Unlock()

	if _, err := c.fs.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn("failed to stat checkout during reclamation", "path", path, "error", err)
		}
		return
	}

	if err := util.RemoveAll(c.fs, path); err != nil {
		c.log.Warn("failed to remove checkout", "path", path, "error", err)
		return
	}
	c.log.Debug("reclaimed checkout", "path", path)
}

// FlushAll reclaims every pending path, in parallel, before returning.
// It blocks up to the context deadline (or the flush timeout if the context
// carries none) and then proceeds regardless of outstanding work; the flush
// is best effort, not guaranteed complete reclamation.
func (c *Coordinator) FlushAll(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.flushTimeout)
		defer cancel()
	}

	c.mu.Lock()
	paths := make([]string, 0, len(c.pending))
	for path := range c.pending {
		paths = append(paths, path)
	}
	c.mu.Unlock()

	var g errgroup.Group
	for _, path := range paths {
		g.Go(func() error {
			c.Reclaim(path)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.CodeTimeout, "shutdown flush did not complete")
	}
}

// PendingLen reports how many paths are awaiting reclamation. Diagnostics
// only.
func (c *Coordinator) PendingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
