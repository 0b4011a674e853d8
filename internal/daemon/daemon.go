// Package daemon wires the mirror together and runs it: periodic
// reconciliation passes, the vault watcher feeding the change detector, the
// debounced command queue, and the optional status server.
//
// The daemon serializes everything that mutates shared state: a pass, or
// one batch's result application, runs to completion before the next
// starts, and the detector is paused while the engine writes so the
// engine's own writes are never mistaken for user edits.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vaultsync/vaultsync/internal/config"
	"github.com/vaultsync/vaultsync/internal/dashboard"
	"github.com/vaultsync/vaultsync/internal/detect"
	"github.com/vaultsync/vaultsync/internal/engine"
	"github.com/vaultsync/vaultsync/internal/index"
	"github.com/vaultsync/vaultsync/internal/model"
	"github.com/vaultsync/vaultsync/internal/queue"
	"github.com/vaultsync/vaultsync/internal/remote"
	"github.com/vaultsync/vaultsync/internal/resolve"
	"github.com/vaultsync/vaultsync/internal/state"
	"github.com/vaultsync/vaultsync/internal/vault"
)

// Daemon owns the assembled mirror stack.
type Daemon struct {
	cfg    *config.Config
	logger *log.Logger

	tree  *vault.FS
	store *state.Store
	idx   *index.Index
	eng   *engine.Engine
	det   *detect.Detector
	queue *queue.Queue
	dash  *dashboard.Server

	// syncMu serializes reconciliation passes and result application.
	syncMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates cfg, opens the vault and the state database, and assembles
// the stack. The caller must Close() the daemon when done.
func New(cfg *config.Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := newLogger(cfg)

	tree, err := vault.NewFS(cfg.VaultDir)
	if err != nil {
		return nil, err
	}
	store, err := state.Open(cfg.StatePath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		cfg:    cfg,
		logger: logger,
		tree:   tree,
		store:  store,
		idx:    index.New(logger),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.DashboardAddr != "" {
		d.dash = dashboard.NewServer(cfg.DashboardAddr, d, logger)
	}

	res := resolve.New(resolve.Layout{
		DoneDir:    cfg.DoneDir,
		ArchiveDir: cfg.ArchiveDir,
		TrashDir:   cfg.TrashDir,
	})
	svc := remote.NewClient(cfg.BaseURL, cfg.APIToken, logger)

	d.eng = engine.New(tree, svc, store, d.idx, res, logger, d.notifier())
	d.det = detect.New(tree, d.idx, store, func(in queue.Intent) { d.queue.Enqueue(in) }, logger)
	d.queue = queue.New(ctx, svc, &serialApplier{d: d}, queue.Config{
		Debounce: cfg.Debounce,
		Logger:   logger,
		OnReject: d.onReject,
		OnTransportFailure: func(n int, err error) {
			logger.Printf("Batch of %d commands failed in transport, kept pending: %v", n, err)
		},
	})

	if err := d.idx.Rebuild(tree, res.IsBucketPath); err != nil {
		_ = store.Close()
		cancel()
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}
	return d, nil
}

// newLogger builds the daemon logger, routed through a rotating file when
// one is configured.
func newLogger(cfg *config.Config) *log.Logger {
	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
		}
	}
	return log.New(w, "[vaultsync] ", log.LstdFlags)
}

// notifier combines log output with the status server, when one exists.
func (d *Daemon) notifier() engine.Notifier {
	notifiers := []engine.Notifier{logNotifier{d}}
	if d.dash != nil {
		notifiers = append(notifiers, d.dash)
	}
	return multiNotifier(notifiers)
}

func (d *Daemon) onReject(in queue.Intent, status remote.CommandStatus) {
	d.logger.Printf("Remote rejected %s for %s: %d %s", in.Kind, in.ID, status.ErrorCode, status.ErrorMessage)
	if d.dash != nil {
		d.dash.CommandRejected(in.Kind.String(), in.ID, status.ErrorCode, status.ErrorMessage)
	}
}

// RunOnce performs a single reconciliation pass.
func (d *Daemon) RunOnce(ctx context.Context, full bool) (*engine.Stats, error) {
	return d.runPass(ctx, full)
}

// runPass runs one serialized pass with the detector paused.
func (d *Daemon) runPass(ctx context.Context, full bool) (*engine.Stats, error) {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()
	d.det.Pause()
	defer d.det.Resume()
	return d.eng.RunPass(ctx, full)
}

// Push scans the vault for unsent local edits and dispatches them
// immediately, bypassing the debounce window.
func (d *Daemon) Push(ctx context.Context) error {
	docs, err := d.tree.ListDocuments("")
	if err != nil {
		return err
	}
	for _, p := range docs {
		op := vault.OpModify
		if _, ok := d.idx.ReverseLookup(p); !ok {
			op = vault.OpCreate
		}
		d.det.HandleEvent(vault.Event{Path: p, Op: op})
	}
	return d.queue.Flush(ctx)
}

// Status implements dashboard.StatusSource.
func (d *Daemon) Status() dashboard.StatusData {
	projects, sections, tasks := d.store.Counts()
	return dashboard.StatusData{
		Cursor:         d.store.Cursor(),
		Projects:       projects,
		Sections:       sections,
		Tasks:          tasks,
		PendingIntents: d.queue.Pending(),
		QueueState:     d.queue.State().String(),
	}
}

// Run starts the daemon: an initial full pass, the vault watcher, and
// periodic incremental passes. Blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Println("Starting daemon")

	if d.dash != nil {
		if err := d.dash.Start(); err != nil {
			return err
		}
	}

	if _, err := d.runPass(ctx, true); err != nil {
		// A failed initial pass is not fatal; the interval retries it.
		d.logger.Printf("Initial pass failed: %v", err)
	}

	watcher, err := vault.NewWatcher(d.tree)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	d.logger.Printf("Watching vault: %s", d.tree.Root())

	d.wg.Add(2)
	go d.watchLoop(watcher)
	go d.passLoop(ctx)

	select {
	case <-ctx.Done():
	case <-d.ctx.Done():
	}

	d.logger.Println("Stopping daemon")
	if err := watcher.Stop(); err != nil {
		d.logger.Printf("Error stopping watcher: %v", err)
	}
	d.cancel()
	d.wg.Wait()

	// Give pending local edits one last chance to reach the remote.
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 10*time.Second)
	if err := d.queue.Flush(flushCtx); err != nil {
		d.logger.Printf("Final flush failed: %v", err)
	}
	cancelFlush()
	d.queue.Stop()
	if d.dash != nil {
		if err := d.dash.Stop(); err != nil {
			d.logger.Printf("Error stopping status server: %v", err)
		}
	}
	d.logger.Println("Daemon stopped")
	return nil
}

// watchLoop feeds watcher events into the detector.
func (d *Daemon) watchLoop(watcher *vault.Watcher) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case ev, ok := <-watcher.Events():
			if !ok {
				return
			}
			d.det.HandleEvent(ev)
		case err, ok := <-watcher.Errors():
			if !ok {
				return
			}
			d.logger.Printf("Watcher error: %v", err)
		}
	}
}

// passLoop runs incremental passes on the configured interval.
func (d *Daemon) passLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.runPass(ctx, false); err != nil {
				d.logger.Printf("Pass failed: %v", err)
			}
		}
	}
}

// Close releases the daemon's resources.
func (d *Daemon) Close() error {
	d.cancel()
	return d.store.Close()
}

// serialApplier routes command outcomes into the engine under the daemon's
// sync lock, with the detector paused so the engine's writes are not
// re-detected as edits.
type serialApplier struct {
	d *Daemon
}

func (a *serialApplier) locked(fn func() error) error {
	a.d.syncMu.Lock()
	defer a.d.syncMu.Unlock()
	a.d.det.Pause()
	defer a.d.det.Resume()
	return fn()
}

func (a *serialApplier) ApplyComplete(id string) error {
	return a.locked(func() error { return a.d.eng.ApplyComplete(id) })
}

func (a *serialApplier) ApplyUncomplete(id string) error {
	return a.locked(func() error { return a.d.eng.ApplyUncomplete(id) })
}

func (a *serialApplier) ApplyUpdate(id string, ch model.Changes) error {
	return a.locked(func() error { return a.d.eng.ApplyUpdate(id, ch) })
}

func (a *serialApplier) ApplyCreate(tempID, realID, docPath string) error {
	return a.locked(func() error { return a.d.eng.ApplyCreate(tempID, realID, docPath) })
}

func (a *serialApplier) ApplyCursor(next string) error {
	return a.locked(func() error { return a.d.eng.ApplyCursor(next) })
}

// logNotifier writes pass-phase notifications to the daemon log.
type logNotifier struct {
	d *Daemon
}

func (n logNotifier) PassStarted(full bool) {
	n.d.logger.Printf("Pass started (full=%v)", full)
}

func (n logNotifier) PassSucceeded(full bool, stats engine.Stats) {
	n.d.logger.Printf("Pass succeeded (full=%v): created=%d updated=%d relocated=%d removed=%d",
		full, stats.Created, stats.Updated, stats.Relocated, stats.Removed)
}

func (n logNotifier) PassFailed(full bool, err error) {
	n.d.logger.Printf("Pass failed (full=%v): %v", full, err)
}

// multiNotifier fans notifications out to several notifiers.
type multiNotifier []engine.Notifier

func (m multiNotifier) PassStarted(full bool) {
	for _, n := range m {
		n.PassStarted(full)
	}
}

func (m multiNotifier) PassSucceeded(full bool, stats engine.Stats) {
	for _, n := range m {
		n.PassSucceeded(full, stats)
	}
}

func (m multiNotifier) PassFailed(full bool, err error) {
	for _, n := range m {
		n.PassFailed(full, err)
	}
}
