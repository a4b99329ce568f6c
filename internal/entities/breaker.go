package entities

import (
	"context"
	"fmt"

	"opsflow/pkg/circuitbreaker"
	apperrors "opsflow/pkg/errors"
)

type CircuitBreakerLoader struct {
	next Loader
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerLoader(next Loader, cfg circuitbreaker.Config) *CircuitBreakerLoader {
	return &CircuitBreakerLoader{
		next: next,
		cb:   circuitbreaker.NewWrapper(cfg),
	}
}

func (l *CircuitBreakerLoader) Load(ctx context.Context, orgID, kind, id string) (map[string]interface{}, error) {
	result, err := l.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return l.next.Load(ctx, orgID, kind, id)
	})
	if err != nil {
		if circuitbreaker.IsRejected(err) {
			return nil, apperrors.ErrServiceUnavailable.
				WithCause(err).
				WithDetail("message", fmt.Sprintf("entity store circuit %s is open", l.cb.Name()))
		}
		return nil, err
	}

	entity, _ := result.(map[string]interface{})
	return entity, nil
}

func (l *CircuitBreakerLoader) State() string {
	return l.cb.State().String()
}
