// Package workflows runs fetch cycles as durable Temporal workflows.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/core/usecases"
)

// WorkflowImagery is the registered workflow type name.
const WorkflowImagery = "ImageryWorkflow"

// ImageryInput is the input for ImageryWorkflow.
type ImageryInput struct {
	CycleID       string
	SessionID     string
	Bounds        domain.Bounds
	Authenticated bool
	BeforeWindow  domain.Period
	RecentMonths  int
	Width         int
	Height        int
	Format        string
	PrimaryZoom   int
	FallbackZoom  int
	CacheTTL      int
	Links         domain.CopernicusLinks
}

// NewImageryInput builds a workflow input from the service settings.
func NewImageryInput(cfg usecases.ImagerySettings, links domain.CopernicusLinks, cycleID, sessionID string, bounds domain.Bounds) ImageryInput {
	return ImageryInput{
		CycleID:       cycleID,
		SessionID:     sessionID,
		Bounds:        bounds,
		Authenticated: cfg.Authenticated,
		BeforeWindow:  cfg.BeforeWindow,
		RecentMonths:  cfg.RecentMonths,
		Width:         cfg.Width,
		Height:        cfg.Height,
		Format:        cfg.Format,
		PrimaryZoom:   cfg.PrimaryZoom,
		FallbackZoom:  cfg.FallbackZoom,
		CacheTTL:      cfg.CacheTTL,
		Links:         links,
	}
}

// ImageryWorkflow acquires a before/now pair: authenticated rendering when
// enabled, static tiles otherwise, and static tiles at the fallback zoom
// when rendering fails. Journal writes are best effort.
func ImageryWorkflow(ctx workflow.Context, in ImageryInput) (*domain.ImageryResult, error) {
	logger := workflow.GetLogger(ctx)

	result := &domain.ImageryResult{
		CycleID:   in.CycleID,
		SessionID: in.SessionID,
		Bounds:    in.Bounds,
		State:     domain.StateLoading,
	}
	if err := in.Bounds.Validate(); err != nil {
		result.State = domain.StateFailed
		result.Error = err.Error()
		return result, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidGeometry", err)
	}

	journalCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
	renderCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 90 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 2 * time.Second,
			MaximumAttempts: 2,
		},
	})

	started := workflow.Now(ctx)
	cycle := domain.FetchCycle{
		ID:        in.CycleID,
		SessionID: in.SessionID,
		Bounds:    in.Bounds,
		State:     domain.StateLoading,
		StartedAt: started,
	}
	if err := workflow.ExecuteActivity(journalCtx, ActivityRecordCycle, cycle).Get(ctx, nil); err != nil {
		logger.Warn("journal start failed", "error", err)
	}

	var pair Pair
	var err error
	if in.Authenticated {
		err = workflow.ExecuteActivity(renderCtx, ActivityRenderPair, renderRequest(in, started)).Get(ctx, &pair)
		if err == nil {
			result.State = domain.StateSuccess
			result.Strategy = domain.StrategyAuthenticated
		} else {
			logger.Warn("render failed, falling back to static tiles", "error", err)
			result.State = domain.StateFallback
			result.Error = err.Error()
			err = workflow.ExecuteActivity(journalCtx, ActivityStaticPair, StaticRequest{
				Bounds:      in.Bounds,
				Zoom:        in.FallbackZoom,
				BeforeLabel: usecases.LabelBeforeFallback,
				NowLabel:    usecases.LabelNowFallback,
			}).Get(ctx, &pair)
		}
	} else {
		err = workflow.ExecuteActivity(journalCtx, ActivityStaticPair, StaticRequest{
			Bounds:      in.Bounds,
			Zoom:        in.PrimaryZoom,
			BeforeLabel: usecases.LabelBefore,
			NowLabel:    usecases.LabelNow,
		}).Get(ctx, &pair)
		result.State = domain.StateSuccess
	}
	if err != nil {
		result.State = domain.StateFailed
		result.Error = err.Error()
	} else {
		if result.Strategy == "" {
			result.Strategy = domain.StrategyStatic
		}
		result.Before, result.Now = &pair.Before, &pair.Now
	}
	result.Links = in.Links

	finished := workflow.Now(ctx)
	cycle.State, cycle.Strategy, cycle.Error, cycle.FinishedAt = result.State, result.Strategy, result.Error, &finished
	if jerr := workflow.ExecuteActivity(journalCtx, ActivityRecordCycle, cycle).Get(ctx, nil); jerr != nil {
		logger.Warn("journal finish failed", "error", jerr)
	}

	logger.Info("imagery workflow finished", "state", result.State, "strategy", result.Strategy)
	return result, err
}

func renderRequest(in ImageryInput, at time.Time) RenderRequest {
	months := in.RecentMonths
	if months <= 0 {
		months = 3
	}
	today := domain.DateOf(at)
	now := domain.Period{From: domain.DateOf(today.AddDate(0, -months, 0)), To: today}

	req := func(p domain.Period, label string) domain.ImageryRequest {
		return domain.ImageryRequest{
			Bounds: in.Bounds,
			Period: p,
			Width:  in.Width,
			Height: in.Height,
			Format: in.Format,
			Label:  label,
		}
	}
	return RenderRequest{
		CycleID:  in.CycleID,
		Before:   req(in.BeforeWindow, usecases.LabelBefore),
		Now:      req(now, usecases.LabelNow),
		CacheTTL: in.CacheTTL,
	}
}
