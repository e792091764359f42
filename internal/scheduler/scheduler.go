package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"StockInsight/internal/pipeline"
	"StockInsight/internal/recorder"
	"StockInsight/pkg/logger"
)

// SystemIdentity owns forecasts produced by the scheduled refresh.
const SystemIdentity = "system"

// OrphanAge is how old an unreferenced plot must be before the janitor
// removes it. Anything younger may belong to a run still in flight.
const OrphanAge = time.Hour

// Sweeper is implemented by governors that hold per-key state in memory.
type Sweeper interface {
	Sweep(now time.Time) int
}

// BatchRunner runs the pipeline for several tickers.
type BatchRunner interface {
	RunBatch(ctx context.Context, identity string, tickers []string) []pipeline.BatchResult
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron        *cron.Cron
	Governor    Sweeper
	Pipeline    BatchRunner
	Recorder    recorder.Recorder
	ArtifactDir string // relative to BaseDir, slash separated
	BaseDir     string
	Log         *logger.Logger
	Ctx         context.Context
	Now         func() time.Time
}

// NewScheduler creates a new Scheduler. gov may be nil when the governor
// keeps no local state.
func NewScheduler(ctx context.Context, gov Sweeper, p BatchRunner, rec recorder.Recorder, baseDir, artifactDir string, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		Cron:        cron.New(cron.WithSeconds()),
		Governor:    gov,
		Pipeline:    p,
		Recorder:    rec,
		BaseDir:     baseDir,
		ArtifactDir: artifactDir,
		Log:         log,
		Ctx:         ctx,
		Now:         time.Now,
	}
}

// RegisterAll registers the governor sweep, the artifact janitor and, when
// refreshCron is set, the tracked-ticker refresh.
func (s *Scheduler) RegisterAll(janitorCron, refreshCron string) error {
	if s.Governor != nil {
		if _, err := s.Cron.AddFunc("0 * * * * *", s.sweepGovernor); err != nil {
			return fmt.Errorf("register governor sweep: %w", err)
		}
	}
	if janitorCron != "" {
		if _, err := s.Cron.AddFunc(janitorCron, s.janitorTask); err != nil {
			return fmt.Errorf("register janitor task: %w", err)
		}
	}
	if refreshCron != "" {
		if _, err := s.Cron.AddFunc(refreshCron, s.refreshTask); err != nil {
			return fmt.Errorf("register refresh task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Log.Info("scheduler started", logger.Int("jobs", len(s.Cron.Entries())))
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Log.Info("scheduler stopped")
}

func (s *Scheduler) sweepGovernor() {
	if n := s.Governor.Sweep(s.Now()); n > 0 {
		s.Log.Debug("governor swept", logger.Int("removed", n))
	}
}

func (s *Scheduler) janitorTask() {
	removed, err := s.CleanOrphans(s.Ctx)
	if err != nil {
		s.Log.Error("janitor failed", logger.Error(err))
		return
	}
	if removed > 0 {
		s.Log.Info("janitor removed orphan plots", logger.Int("removed", removed))
	}
}

// CleanOrphans deletes PNG files in the artifact dir that are older than
// OrphanAge and not referenced by any stored forecast.
func (s *Scheduler) CleanOrphans(ctx context.Context) (int, error) {
	dir := filepath.Join(s.BaseDir, filepath.FromSlash(s.ArtifactDir))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read artifact dir: %w", err)
	}

	refs, err := s.Recorder.ReferencedArtifacts(ctx)
	if err != nil {
		return 0, fmt.Errorf("load referenced artifacts: %w", err)
	}

	cutoff := s.Now().Add(-OrphanAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		rel := filepath.ToSlash(filepath.Join(s.ArtifactDir, e.Name()))
		if _, ok := refs[rel]; ok {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			s.Log.Warn("remove orphan plot", logger.String("file", rel), logger.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *Scheduler) refreshTask() {
	if _, err := s.Refresh(s.Ctx); err != nil {
		s.Log.Error("refresh failed", logger.Error(err))
	}
}

// Refresh reruns the pipeline for every ticker already in the store under
// SystemIdentity and returns how many runs succeeded.
func (s *Scheduler) Refresh(ctx context.Context) (int, error) {
	tickers, err := s.Recorder.Tickers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tickers: %w", err)
	}
	if len(tickers) == 0 {
		return 0, nil
	}

	s.Log.Info("running scheduled refresh", logger.Strings("tickers", tickers))
	ok := 0
	for _, r := range s.Pipeline.RunBatch(ctx, SystemIdentity, tickers) {
		if r.Err != nil {
			s.Log.Warn("refresh ticker failed", logger.String("ticker", r.Ticker), logger.Error(r.Err))
			continue
		}
		ok++
	}
	s.Log.Info("scheduled refresh done", logger.Int("ok", ok), logger.Int("total", len(tickers)))
	return ok, nil
}
