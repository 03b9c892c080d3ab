package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/utils/errutil"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

// Status summarizes how a pipeline request ended
type Status string

const (
	// StatusSuccess means every stage completed
	StatusSuccess Status = "success"
	// StatusPartial means some stages failed or degraded but a usable payload was produced
	StatusPartial Status = "partial"
	// StatusError means no usable payload was produced
	StatusError Status = "error"
	// StatusNoData means the request referred to nothing that exists
	StatusNoData Status = "no_data"
)

// Stage names a step of a pipeline request
type Stage string

const (
	StageDetectLanguage  Stage = "detect_language"
	StageTranslateInput  Stage = "translate_input"
	StageIndex           Stage = "index"
	StageExtract         Stage = "extract"
	StagePredict         Stage = "predict"
	StageExplain         Stage = "explain"
	StageNarrative       Stage = "narrative"
	StageTranslateOutput Stage = "translate_output"
	StageRetrieve        Stage = "retrieve"
	StageAnswer          Stage = "answer"
	StageSummary         Stage = "summary"
)

// StageError reports one failed or degraded stage
type StageError struct {
	Stage    Stage  `json:"stage"`
	Message  string `json:"message"`
	Degraded bool   `json:"degraded"`
}

// Response is the envelope shared by every pipeline result
type Response struct {
	Status    Status             `json:"status"`
	RequestID string             `json:"request_id"`
	Language  types.LanguageCode `json:"language"`
	Error     string             `json:"error,omitempty"`
	Errors    []StageError       `json:"errors,omitempty"`
	Message   string             `json:"message,omitempty"`
}

// Failed returns the error of stage, or nil when the stage did not fail
func (r *Response) Failed(stage Stage) *StageError {
	for i := range r.Errors {
		if r.Errors[i].Stage == stage {
			return &r.Errors[i]
		}
	}
	return nil
}

// run tracks the stages of one request
type run struct {
	resp    *Response
	timeout time.Duration
	started time.Time
}

func newRun(ctx context.Context, timeout time.Duration) (context.Context, *run) {
	id := uuid.NewString()
	ctx = logging.With(ctx, logging.From(ctx).With(RequestIDKey, id))
	return ctx, &run{
		resp:    &Response{RequestID: id},
		timeout: timeout,
		started: time.Now(),
	}
}

// stage runs fn with the stage timeout and records its failure. It reports whether the
// stage produced a usable result: degraded failures still count as usable.
func (r *run) stage(ctx context.Context, stage Stage, fn func(ctx context.Context) error) bool {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := fn(ctx)
	if err == nil {
		return true
	}
	return r.fail(ctx, stage, err)
}

// fail records err for stage and reports whether the stage still produced a usable result
func (r *run) fail(ctx context.Context, stage Stage, err error) bool {
	degraded := errors.Is(err, model.ErrDegradedService)
	r.resp.Errors = append(r.resp.Errors, StageError{
		Stage:    stage,
		Message:  err.Error(),
		Degraded: degraded,
	})
	if r.resp.Error == "" {
		r.resp.Error = err.Error()
	}

	logger := logging.From(ctx)
	switch {
	case degraded:
		logger.Warn("pipeline stage degraded", StageKey, stage, "error", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, model.ErrInvalidInput):
		logger.Warn("pipeline stage failed", StageKey, stage, "error", err)
	default:
		_ = errutil.Handle(ctx, goerr.Wrap(err, "pipeline stage failed", goerr.V(StageKey, stage)), "pipeline stage failed")
	}
	return degraded
}

// finish sets the final status. produced tells whether the request yielded its main payload.
func (r *run) finish(ctx context.Context, produced bool) {
	switch {
	case !produced:
		r.resp.Status = StatusError
	case len(r.resp.Errors) > 0:
		r.resp.Status = StatusPartial
	default:
		r.resp.Status = StatusSuccess
	}
	logging.From(ctx).Info("pipeline request finished",
		"status", r.resp.Status,
		"errors", len(r.resp.Errors),
		"elapsed", time.Since(r.started),
	)
}

func unavailable(component string) error {
	return goerr.Wrap(model.ErrDegradedService, "component is not configured", goerr.V("component", component))
}
