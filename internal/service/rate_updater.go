package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"currencyapi/internal/model"

	"github.com/robfig/cron/v3"
)

const (
	JobFetch = "fetch"
	JobApply = "apply"
)

// JobStatus outcome of the most recent run of one job
type JobStatus struct {
	LastRun    time.Time        `json:"last_run"`
	Duration   string           `json:"duration"`
	Status     string           `json:"status"` // ok, skipped, failed
	Error      string           `json:"error,omitempty"`
	FeedDate   string           `json:"feed_date,omitempty"`
	Reconciled *ReconcileResult `json:"reconciled,omitempty"`
}

// RateUpdater runs the fetch and apply jobs on their cron schedules.
// Runs are not serialized: an apply that overlaps another apply or a
// fetch sees the same snapshot and the same-day rule keeps the outcome stable.
type RateUpdater struct {
	fetcher      Fetcher
	reconciler   *Reconciler
	snapshotPath string

	cron *cron.Cron

	mu     sync.RWMutex
	status map[string]JobStatus
}

// NewRateUpdater wires the jobs; call Schedule before Start
func NewRateUpdater(fetcher Fetcher, reconciler *Reconciler, snapshotPath string) *RateUpdater {
	logger := cronLogger{}
	return &RateUpdater{
		fetcher:      fetcher,
		reconciler:   reconciler,
		snapshotPath: snapshotPath,
		cron: cron.New(
			cron.WithLocation(model.MSK),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger)),
		),
		status: make(map[string]JobStatus),
	}
}

// Schedule registers both jobs, e.g. "@every 24h" and "@every 12h"
func (u *RateUpdater) Schedule(fetchSpec, applySpec string) error {
	if _, err := u.cron.AddFunc(fetchSpec, func() { u.RunFetch(context.Background()) }); err != nil {
		return err
	}
	if _, err := u.cron.AddFunc(applySpec, func() { u.RunApply(context.Background()) }); err != nil {
		return err
	}
	return nil
}

// Start runs the scheduler; with runNow a fetch and then an apply run immediately
func (u *RateUpdater) Start(runNow bool) {
	slog.Info("rate updater started", "entries", len(u.cron.Entries()))
	if runNow {
		go func() {
			ctx := context.Background()
			u.RunFetch(ctx)
			u.RunApply(ctx)
		}()
	}
	u.cron.Start()
}

// Stop waits for running jobs to finish or ctx to expire
func (u *RateUpdater) Stop(ctx context.Context) {
	done := u.cron.Stop()
	select {
	case <-done.Done():
		slog.Info("rate updater stopped")
	case <-ctx.Done():
		slog.Warn("rate updater stop timed out, jobs still running")
	}
}

// RunFetch downloads the feed and replaces the snapshot. An unreachable
// feed is logged and leaves the previous snapshot in place.
func (u *RateUpdater) RunFetch(ctx context.Context) (JobStatus, error) {
	start := time.Now()
	st := JobStatus{LastRun: model.Now()}

	snapshot, err := u.fetcher.Fetch(ctx)
	if err == nil {
		jobMetrics.FeedRows.Set(float64(len(snapshot.ValCurs.Valute)))
		st.FeedDate = snapshot.ValCurs.Date
		err = WriteSnapshot(u.snapshotPath, snapshot)
	}

	switch {
	case errors.Is(err, ErrUpstreamFetch):
		slog.Warn("feed fetch skipped", "error", err)
		st.Status = "skipped"
		st.Error = err.Error()
		err = nil
	case err != nil:
		slog.Error("feed fetch failed", "error", err)
		st.Status = "failed"
		st.Error = err.Error()
	default:
		slog.Info("feed snapshot written", "path", u.snapshotPath, "date", st.FeedDate)
		st.Status = "ok"
	}

	return u.finish(JobFetch, start, st), err
}

// RunApply reconciles the current snapshot. A missing snapshot is a no-op;
// malformed feed data is returned.
func (u *RateUpdater) RunApply(ctx context.Context) (JobStatus, error) {
	start := time.Now()
	st := JobStatus{LastRun: model.Now()}

	snapshot, err := ReadSnapshot(u.snapshotPath)
	if errors.Is(err, ErrNoSnapshot) {
		slog.Info("no feed snapshot yet, apply skipped", "path", u.snapshotPath)
		st.Status = "skipped"
		return u.finish(JobApply, start, st), nil
	}

	if err == nil {
		st.FeedDate = snapshot.ValCurs.Date
		var result ReconcileResult
		result, err = u.reconciler.Apply(ctx, snapshot)
		st.Reconciled = &result
	}

	if err != nil {
		slog.Error("rate reconciliation failed", "error", err)
		st.Status = "failed"
		st.Error = err.Error()
	} else {
		st.Status = "ok"
	}
	return u.finish(JobApply, start, st), err
}

func (u *RateUpdater) finish(job string, start time.Time, st JobStatus) JobStatus {
	elapsed := time.Since(start)
	st.Duration = elapsed.String()

	jobMetrics.RunsTotal.WithLabelValues(job, st.Status).Inc()
	jobMetrics.RunDuration.WithLabelValues(job).Observe(elapsed.Seconds())
	if st.Status == "ok" {
		jobMetrics.LastSuccess.WithLabelValues(job).SetToCurrentTime()
	}

	u.mu.Lock()
	u.status[job] = st
	u.mu.Unlock()
	return st
}

// Status last run of every job that has run
func (u *RateUpdater) Status() map[string]JobStatus {
	u.mu.RLock()
	defer u.mu.RUnlock()

	out := make(map[string]JobStatus, len(u.status))
	for job, st := range u.status {
		out[job] = st
	}
	return out
}

// cronLogger sends cron's own messages to slog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
