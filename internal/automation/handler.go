package automation

import (
	"context"

	"opsflow/internal/logger"
	apperrors "opsflow/pkg/errors"
	"opsflow/pkg/models"
	"opsflow/pkg/retry"
)

type eventProcessor interface {
	ProcessEvent(ctx context.Context, event models.AppEvent) (*Result, error)
}

// Handler feeds broker envelopes into the engine. Malformed events are
// fatal so the consumer dead-letters them without retrying.
type Handler struct {
	engine eventProcessor
	logger logger.Logger
}

func NewHandler(engine eventProcessor, log logger.Logger) *Handler {
	return &Handler{engine: engine, logger: log}
}

func (h *Handler) HandleEvent(ctx context.Context, env models.EventEnvelope) error {
	event := env.Event
	if err := models.ValidateAppEvent(&event); err != nil {
		h.logger.ErrorwCtx(ctx, "Rejecting malformed event",
			"error", err,
		)
		return retry.NewFatalError(apperrors.ErrInvalidEvent.WithCause(err))
	}

	result, err := h.engine.ProcessEvent(ctx, event)
	if err != nil {
		if !apperrors.IsRetryable(err) {
			return retry.NewFatalError(err)
		}
		return err
	}

	queued, skipped := 0, 0
	for _, r := range result.Rules {
		switch r.Status {
		case RunStatusQueued:
			queued++
		case RunStatusSkipped:
			skipped++
		}
	}

	h.logger.InfowCtx(ctx, "Event handled",
		"event_type", event.EventType,
		"outcome", result.Outcome,
		"rules", len(result.Rules),
		"runs_queued", queued,
		"runs_skipped", skipped,
	)
	return nil
}
