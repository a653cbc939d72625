// Package watch re-runs indexing when source files under a project root
// change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/phobologic/jsguide/internal/discover"
)

// RunFunc performs one index run.
type RunFunc func(ctx context.Context) error

// Options configures a Watcher.
type Options struct {
	// Extensions selects the files whose changes trigger a run. Defaults
	// to .js.
	Extensions []string
	// Interval is the minimum time between two runs. Defaults to one
	// second.
	Interval time.Duration
	// OnRun is called after every run with its result.
	OnRun  func(error)
	Logger *slog.Logger
}

// Watcher coalesces filesystem events into serialised, rate limited runs.
type Watcher struct {
	root    string
	run     RunFunc
	opts    Options
	logger  *slog.Logger
	fsw     *fsnotify.Watcher
	limiter *rate.Limiter
	exts    map[string]struct{}
	// pending holds at most one queued run; events arriving while a run is
	// queued fold into it.
	pending chan struct{}
}

// New watches every directory under root that discovery would scan.
func New(root string, run RunFunc, opts Options) (*Watcher, error) {
	if run == nil {
		return nil, errors.New("watch: nil run function")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".js"}
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{
		root:    root,
		run:     run,
		opts:    opts,
		logger:  opts.Logger,
		fsw:     fsw,
		limiter: rate.NewLimiter(rate.Every(opts.Interval), 1),
		exts:    make(map[string]struct{}, len(opts.Extensions)),
		pending: make(chan struct{}, 1),
	}
	for _, e := range opts.Extensions {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		w.exts[e] = struct{}{}
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && discover.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

// Trigger queues a run as if a watched file had changed.
func (w *Watcher) Trigger() {
	select {
	case w.pending <- struct{}{}:
	default:
	}
}

// Run processes events until ctx is cancelled. It performs one initial run.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.loop(ctx)
	}()
	defer func() { <-done }()
	defer cancel()

	w.Trigger()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if err := w.addTree(ev.Name); err != nil {
			w.logger.Warn("watching new directory", "path", ev.Name, "error", err)
		}
	}
	if !w.relevant(ev) {
		return
	}
	w.logger.Debug("source changed", "path", ev.Name, "op", ev.Op.String())
	w.Trigger()
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	_, ok := w.exts[filepath.Ext(ev.Name)]
	return ok
}

// loop runs queued work one at a time, waiting on the limiter first.
func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.pending:
		}
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		start := time.Now()
		err := w.run(ctx)
		if err != nil {
			w.logger.Warn("index run failed", "error", err)
		} else {
			w.logger.Info("index run finished", "duration", time.Since(start))
		}
		if w.opts.OnRun != nil {
			w.opts.OnRun(err)
		}
	}
}
