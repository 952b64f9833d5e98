// Package batch analyzes many client websites with bounded concurrency and
// writes the outcomes back to the client records.
//
// Two runs that include the same client must not overlap; callers that allow
// concurrent runs have to serialize per client.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/seo-optimizer/insights/analyzer"
	"github.com/seo-optimizer/insights/clients"
	"github.com/seo-optimizer/insights/metrics"
	"github.com/seo-optimizer/insights/models"
	"github.com/seo-optimizer/insights/stats"
)

// DefaultBatchSize is the number of analyses allowed in flight at once.
const DefaultBatchSize = 3

// State of a run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
)

// Run tracks one bulk invocation.
type Run struct {
	ID           string            `json:"id"`
	ClientIDs    []string          `json:"clientIds"`
	State        State             `json:"state"`
	SuccessCount int               `json:"successCount"`
	FailCount    int               `json:"failCount"`
	Failures     map[string]string `json:"failures"`
	StartedAt    time.Time         `json:"startedAt"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
}

// ItemResult is reported to Progress after each client finishes.
type ItemResult struct {
	RunID    string
	ClientID string
	Result   *models.CombinedAnalysisResult
	Err      error
}

// Analyzer runs the single-URL pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, req analyzer.AnalysisRequest) (*models.CombinedAnalysisResult, error)
}

// Orchestrator drives bulk runs. Progress, when set, is called once per item
// and never concurrently.
type Orchestrator struct {
	Clients   clients.Repo
	Analyzer  Analyzer
	BatchSize int
	Strategy  models.Strategy
	Progress  func(ItemResult)
	Stats     stats.Recorder
	Logger    logrus.FieldLogger
	Clock     func() time.Time
}

func (o *Orchestrator) batchSize() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

func (o *Orchestrator) now() time.Time {
	if o.Clock != nil {
		return o.Clock()
	}
	return time.Now()
}

func (o *Orchestrator) logger() logrus.FieldLogger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}

// NewRun creates an idle run for ids, dropping duplicates.
func NewRun(ids []string) *Run {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return &Run{
		ID:        uuid.NewString(),
		ClientIDs: unique,
		State:     StateIdle,
		Failures:  make(map[string]string),
	}
}

// AnalyzeBulk analyzes every client in ids and returns the completed run.
// Item failures are counted, never returned. The error is non-nil only when
// ctx ended during the run; items not started are counted as failed and the
// run is still completed.
func (o *Orchestrator) AnalyzeBulk(ctx context.Context, ids []string) (*Run, error) {
	if o.Clients == nil || o.Analyzer == nil {
		return nil, errors.New("batch: clients and analyzer are required")
	}
	run := NewRun(ids)
	return run, o.Execute(ctx, run)
}

// Execute moves an idle run through running to completed.
func (o *Orchestrator) Execute(ctx context.Context, run *Run) error {
	if run.State != StateIdle {
		return fmt.Errorf("batch: run %s is %s", run.ID, run.State)
	}
	run.State = StateRunning
	run.StartedAt = o.now()
	log := o.logger().WithField("run_id", run.ID)
	log.WithFields(logrus.Fields{"clients": len(run.ClientIDs), "batch_size": o.batchSize()}).Info("bulk analysis started")

	var mu sync.Mutex
	finish := func(id string, res *models.CombinedAnalysisResult, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			run.FailCount++
			run.Failures[id] = err.Error()
			log.WithError(err).WithField("client_id", id).Warn("client analysis failed")
		} else {
			run.SuccessCount++
		}
		if o.Progress != nil {
			o.Progress(ItemResult{RunID: run.ID, ClientID: id, Result: res, Err: err})
		}
	}

	records := o.load(ctx, run.ClientIDs, finish)

	var ctxErr error
	size := o.batchSize()
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		if err := ctx.Err(); err != nil {
			ctxErr = err
			for _, c := range records[start:] {
				finish(c.ID, nil, fmt.Errorf("not started: %w", err))
			}
			break
		}

		var g errgroup.Group
		g.SetLimit(size)
		for _, c := range records[start:end] {
			g.Go(func() error {
				res, err := o.analyzeOne(ctx, c)
				finish(c.ID, res, err)
				return nil
			})
		}
		_ = g.Wait()
	}

	if ctxErr == nil {
		ctxErr = ctx.Err()
	}
	done := o.now()
	run.CompletedAt = &done
	run.State = StateCompleted

	if o.Stats != nil {
		o.Stats.Record(stats.Delta{BulkSucceeded: run.SuccessCount, BulkFailed: run.FailCount})
	}
	metrics.AddBulk(run.SuccessCount, run.FailCount)
	log.WithFields(logrus.Fields{
		"succeeded":   run.SuccessCount,
		"failed":      run.FailCount,
		"duration_ms": done.Sub(run.StartedAt).Milliseconds(),
	}).Info("bulk analysis completed")
	return ctxErr
}

// load fetches the records in order. Unknown or unreadable ids fail here.
func (o *Orchestrator) load(ctx context.Context, ids []string, finish func(string, *models.CombinedAnalysisResult, error)) []clients.Client {
	records := make([]clients.Client, 0, len(ids))
	for _, id := range ids {
		c, err := o.Clients.GetByID(ctx, id)
		if err != nil {
			finish(id, nil, fmt.Errorf("load client: %w", err))
			continue
		}
		records = append(records, c)
	}
	return records
}

// analyzeOne runs the pipeline for one client and persists the outcome.
// The record is updated before history is appended, and restored if the
// append fails, so a failed item leaves both untouched.
func (o *Orchestrator) analyzeOne(ctx context.Context, c clients.Client) (res *models.CombinedAnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	res, err = o.Analyzer.Analyze(ctx, analyzer.AnalysisRequest{
		URL:      c.Website,
		Strategy: o.Strategy,
		UserID:   c.OwnerID,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", c.Website, err)
	}

	report, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	now := o.now()
	prev := c
	c.SEOScore = res.SEOScore
	c.AIOScore = res.AIOScore
	c.Status = res.Status
	c.LastAnalysis = &now
	c.LastReport = report
	c.UpdatedAt = now
	if err := o.Clients.Update(ctx, c); err != nil {
		return nil, &models.PersistenceError{ClientID: c.ID, Err: err}
	}

	entry := clients.HistoryEntry{
		ID:         uuid.NewString(),
		ClientID:   c.ID,
		SEOScore:   res.SEOScore,
		AIOScore:   res.AIOScore,
		Status:     res.Status,
		Report:     report,
		RecordedAt: now,
	}
	if err := o.Clients.AppendHistory(ctx, entry); err != nil {
		// Put the record back so the item leaves no trace.
		if rerr := o.Clients.Update(context.WithoutCancel(ctx), prev); rerr != nil {
			o.logger().WithError(rerr).WithField("client_id", c.ID).Error("failed to restore client record")
			err = errors.Join(err, rerr)
		}
		return nil, &models.PersistenceError{ClientID: c.ID, Err: err}
	}
	return res, nil
}
