package preplan

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/buildbotics/bbctrl-motion/internal/planner"
	"github.com/buildbotics/bbctrl-motion/internal/state"
	"github.com/buildbotics/bbctrl-motion/internal/timex"
)

const (
	defaultWorkers       = 4
	defaultKeepPerFile   = 2
	defaultMaxPreplanDur = 600 * time.Second
	defaultMaxLoopDur    = 30 * time.Second
)

// EngineFactory constructs a fresh, throwaway planner engine for one
// plan run. The Preplanner never touches the live engine the Motion
// Coordinator drives (spec §4.F).
type EngineFactory func() planner.Engine

// job tracks one in-flight or completed plan for a given filename.
type job struct {
	hash     string
	cancel   context.CancelFunc
	done     chan struct{}
	progress atomicFloat
	result   Result
	err      error
}

// Preplanner runs uploaded G-code programs through a throwaway planner
// engine to precompute path previews and bounds, off the live control
// path (spec §4.F).
type Preplanner struct {
	log *logrus.Entry

	store      *state.Store
	newEngine  EngineFactory
	uploadDir  string
	cache      *cache
	workers    chan struct{}
	maxPreplanTime, maxLoopTime time.Duration

	mu   sync.Mutex
	jobs map[string]*job
}

// Config configures directory layout and concurrency for a Preplanner.
type Config struct {
	UploadDir, PlansDir, MetaDir string
	Workers                      int
	KeepPerFile                  int
	MaxPreplanTime, MaxLoopTime  time.Duration
}

// New constructs a Preplanner. newEngine is called once per plan run to
// obtain an isolated engine instance.
func New(log *logrus.Entry, store *state.Store, newEngine EngineFactory, cfg Config) *Preplanner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.KeepPerFile <= 0 {
		cfg.KeepPerFile = defaultKeepPerFile
	}
	if cfg.MaxPreplanTime <= 0 {
		cfg.MaxPreplanTime = defaultMaxPreplanDur
	}
	if cfg.MaxLoopTime <= 0 {
		cfg.MaxLoopTime = defaultMaxLoopDur
	}
	return &Preplanner{
		log:            log.WithField("component", "preplan"),
		store:          store,
		newEngine:      newEngine,
		uploadDir:      cfg.UploadDir,
		cache:          newCache(cfg.PlansDir, cfg.MetaDir, cfg.KeepPerFile),
		workers:        make(chan struct{}, cfg.Workers),
		maxPreplanTime: cfg.MaxPreplanTime,
		maxLoopTime:    cfg.MaxLoopTime,
		jobs:           make(map[string]*job),
	}
}

// Plan (re)starts planning filename if not already cached or in flight
// for the current (config, file-bytes) hash, and returns immediately.
// The engine's configuration snapshot is taken from the live store at
// call time via getConfig; it is not re-read once the job starts.
func (p *Preplanner) Plan(filename string, getConfig func() planner.Config) error {
	data, err := os.ReadFile(p.uploadPath(filename))
	if err != nil {
		return err
	}
	cfg := getConfig()
	hash, err := Hash(cfg, data)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if existing, ok := p.jobs[filename]; ok && existing.hash == hash {
		p.mu.Unlock()
		return nil // already running or completed for this hash
	}
	if existing, ok := p.jobs[filename]; ok {
		existing.cancel()
		delete(p.jobs, filename)
	}
	if _, ok := p.cache.Load(filename, hash); ok {
		p.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{hash: hash, cancel: cancel, done: make(chan struct{})}
	p.jobs[filename] = j
	p.mu.Unlock()

	snapshot := p.store.Snapshot()
	totalLines := countLines(data)

	go func() {
		p.workers <- struct{}{}
		defer func() { <-p.workers }()
		defer close(j.done)

		startedAt := timex.NowMs()
		eng := p.newEngine()
		preview, meta, err := p.run(ctx, eng, snapshot, cfg, p.uploadPath(filename), totalLines, j.progress.set)
		if err != nil {
			if ctx.Err() != nil {
				p.log.WithField("file", filename).Debug("preplan cancelled")
				return
			}
			j.err = err
			p.log.WithError(err).WithField("file", filename).Warn("preplan failed")
			return
		}
		p.log.WithField("file", filename).WithField("elapsedMs", timex.NowMs()-startedAt).Debug("preplan finished")
		if err := p.cache.Store(filename, hash, preview, meta); err != nil {
			p.log.WithError(err).WithField("file", filename).Warn("failed to persist plan cache")
		}
		j.result = Result{Hash: hash, Preview: preview, Meta: meta}
	}()

	return nil
}

func (p *Preplanner) uploadPath(filename string) string {
	return filepath.Join(p.uploadDir, filename)
}

// GetPlan returns the completed Result for filename, if a plan has
// finished (successfully or not) since the last Invalidate/DeleteAll, or
// a matching generation is already on disk from an earlier process run.
func (p *Preplanner) GetPlan(filename string) (Result, error, bool) {
	p.mu.Lock()
	j, ok := p.jobs[filename]
	p.mu.Unlock()
	if ok {
		select {
		case <-j.done:
			if j.err == nil {
				return j.result, nil, true
			}
			return Result{}, j.err, true
		default:
			return Result{}, nil, false
		}
	}
	if r, found := p.cache.Latest(filename); found {
		return r, nil, true
	}
	return Result{}, nil, false
}

// GetPlanProgress returns filename's plan progress in [0,1] (1 once the
// job has completed), or 0 if no job is tracked for filename.
func (p *Preplanner) GetPlanProgress(filename string) float64 {
	p.mu.Lock()
	j, ok := p.jobs[filename]
	p.mu.Unlock()
	if !ok {
		return 0
	}
	return j.progress.get()
}

// Invalidate cancels any in-flight plan for filename and forgets its
// completed result, forcing the next Plan call to recompute or re-read
// the cache.
func (p *Preplanner) Invalidate(filename string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if j, ok := p.jobs[filename]; ok {
		j.cancel()
		delete(p.jobs, filename)
	}
}

// InvalidateAll cancels every in-flight plan and forgets all results.
func (p *Preplanner) InvalidateAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, j := range p.jobs {
		j.cancel()
		delete(p.jobs, name)
	}
}

// DeleteAll invalidates filename and removes its cached artifacts from
// disk, used when an uploaded file is deleted.
func (p *Preplanner) DeleteAll(filename string) {
	p.Invalidate(filename)
	p.cache.DeleteAll(filename)
}
