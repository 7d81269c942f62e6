package repo

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/felixgeelhaar/repoagent/infrastructure/logging"
)

const defaultDebounce = 300 * time.Millisecond

// Snapshot serves the current index. A rebuild swaps in a new index and
// never mutates one in use; Pin binds a run to the index current at its start.
type Snapshot struct {
	current atomic.Pointer[Index]
}

// NewSnapshot wraps idx.
func NewSnapshot(idx *Index) *Snapshot {
	s := &Snapshot{}
	s.current.Store(idx)
	return s
}

// Current returns the latest index.
func (s *Snapshot) Current() *Index {
	return s.current.Load()
}

// Revision returns the latest index revision.
func (s *Snapshot) Revision() string {
	if idx := s.current.Load(); idx != nil {
		return idx.Revision()
	}
	return ""
}

// Pin returns a context carrying the current index, and its revision.
// Readers given that context keep resolving against the same index after
// later swaps.
func (s *Snapshot) Pin(ctx context.Context) (context.Context, string) {
	if s == nil {
		return ctx, ""
	}
	idx := s.current.Load()
	if idx == nil {
		return ctx, ""
	}
	return WithIndex(ctx, idx), idx.Revision()
}

type indexKey struct{}

// WithIndex returns a context pinned to idx.
func WithIndex(ctx context.Context, idx *Index) context.Context {
	return context.WithValue(ctx, indexKey{}, idx)
}

// IndexFrom returns the index pinned in ctx, if any.
func IndexFrom(ctx context.Context) (*Index, bool) {
	idx, ok := ctx.Value(indexKey{}).(*Index)
	return idx, ok && idx != nil
}

func (s *Snapshot) swap(idx *Index) {
	s.current.Store(idx)
}

// Watcher rebuilds the index when files under the root change.
type Watcher struct {
	snapshot *Snapshot
	opts     IndexOptions
	debounce time.Duration
	logger   *logging.Logger
	fsw      *fsnotify.Watcher
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	ctx     context.Context

	// rebuilt is signalled after every swap. Used by tests.
	rebuilt chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a rebuild.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(l *logging.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = l
	}
}

// NewWatcher creates a watcher that keeps snapshot current.
func NewWatcher(snapshot *Snapshot, opts IndexOptions, options ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		snapshot: snapshot,
		opts:     opts,
		debounce: defaultDebounce,
		logger:   logging.Nop(),
		fsw:      fsw,
		rebuilt:  make(chan struct{}, 1),
	}
	for _, opt := range options {
		opt(w)
	}
	w.logger = w.logger.With(logging.Component("repo-watcher"))
	return w, nil
}

// Start watches every indexed directory until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	idx := w.snapshot.Current()
	watched := 0
	for _, dir := range directories(idx.Tree()) {
		if err := w.fsw.Add(filepath.Join(idx.Root(), filepath.FromSlash(dir))); err != nil {
			w.logger.Warn().Add(logging.Path(dir)).Add(logging.ErrorField(err)).Msg("cannot watch directory")
			continue
		}
		watched++
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(ctx)

	w.logger.Info().Add(logging.Int("watched", watched)).Msg("watcher started")
	return nil
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}

// Rebuilt is signalled after each snapshot swap.
func (w *Watcher) Rebuilt() <-chan struct{} {
	return w.rebuilt
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Add(logging.ErrorField(err)).Msg("watch error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) == ".git" {
		return
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.fsw.Add(event.Name)
		}
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}
	w.scheduleRebuild()
}

func (w *Watcher) scheduleRebuild() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if !w.pending {
		w.mu.Unlock()
		return
	}
	w.pending = false
	ctx := w.ctx
	w.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}
	start := time.Now()
	idx, err := Build(ctx, w.snapshot.Current().Root(), w.opts)
	if err != nil {
		w.logger.Error().Add(logging.ErrorField(err)).Msg("index rebuild failed")
		return
	}
	w.snapshot.swap(idx)
	w.logger.Info().
		Add(logging.Str("revision", idx.Revision())).
		Add(logging.Int("files", idx.FileCount())).
		Add(logging.Duration(time.Since(start))).
		Msg("index rebuilt")

	select {
	case w.rebuilt <- struct{}{}:
	default:
	}
}

func directories(n *Node) []string {
	if n == nil || !n.IsDir {
		return nil
	}
	out := []string{n.Path}
	for _, c := range n.Children {
		out = append(out, directories(c)...)
	}
	return out
}
