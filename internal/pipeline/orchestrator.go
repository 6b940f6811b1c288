// Package pipeline runs the enrichment stages for one lead and assembles the
// aggregate result. Stages are best-effort: one stage's failure never aborts
// its siblings.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-enrichment/internal/model"
)

// Enricher is one named enrichment stage. Implementations encode expected
// failure modes (empty results, upstream call errors) in the StageResult and
// return a non-nil error only for unexpected conditions; the orchestrator
// converts those into failed results too.
type Enricher interface {
	Stage() model.StageName
	Enrich(ctx context.Context, lead *model.Lead) (*model.StageResult, error)
}

// Orchestrator dispatches requested stages to their enrichers.
type Orchestrator struct {
	enrichers map[model.StageName]Enricher
}

// New creates an Orchestrator over the given stage enrichers.
func New(enrichers ...Enricher) *Orchestrator {
	m := make(map[model.StageName]Enricher, len(enrichers))
	for _, e := range enrichers {
		m[e.Stage()] = e
	}
	return &Orchestrator{enrichers: m}
}

// Run executes the requested stages sequentially, in the order given, so a
// later stage can observe side effects of an earlier one.
func (o *Orchestrator) Run(ctx context.Context, lead *model.Lead, stages []model.StageName) *model.PipelineResult {
	result := &model.PipelineResult{}
	for _, name := range stages {
		result.Set(name, o.runStage(ctx, name, lead))
	}
	return result
}

// RunParallel launches all requested stages concurrently and waits for the
// full set. Assembly is stage-name-keyed, so partial completion is always
// unambiguous.
func (o *Orchestrator) RunParallel(ctx context.Context, lead *model.Lead, stages []model.StageName) *model.PipelineResult {
	result := &model.PipelineResult{}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range stages {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := o.runStage(ctx, name, lead)
			mu.Lock()
			result.Set(name, res)
			mu.Unlock()
		}()
	}
	wg.Wait()

	return result
}

// runStage invokes one enricher, converting any failure into a recorded
// StageResult so siblings keep running.
func (o *Orchestrator) runStage(ctx context.Context, name model.StageName, lead *model.Lead) (res *model.StageResult) {
	log := zap.L().With(
		zap.String("stage", string(name)),
		zap.String("lead_id", lead.ID),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("stage panicked", zap.Any("panic", r))
			res = &model.StageResult{Stage: name, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	enricher, ok := o.enrichers[name]
	if !ok {
		return &model.StageResult{Stage: name, Error: "no enricher registered"}
	}

	start := time.Now()
	res, err := enricher.Enrich(ctx, lead)
	duration := time.Since(start)

	if err != nil {
		log.Error("stage failed", zap.Duration("duration", duration), zap.Error(err))
		return &model.StageResult{Stage: name, Error: err.Error()}
	}
	if res == nil {
		res = &model.StageResult{Stage: name}
	}
	res.Stage = name

	if res.Failed() {
		log.Warn("stage completed with error",
			zap.Duration("duration", duration),
			zap.String("stage_error", res.Error),
		)
	} else {
		log.Info("stage complete", zap.Duration("duration", duration))
	}
	return res
}
