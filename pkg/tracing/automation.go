package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"opsflow/pkg/models"
)

const automationTracer = "opsflow/automation"

const (
	AttrOrgID          = attribute.Key("opsflow.org_id")
	AttrEventID        = attribute.Key("opsflow.event_id")
	AttrEventType      = attribute.Key("opsflow.event_type")
	AttrRuleID         = attribute.Key("opsflow.rule_id")
	AttrRuleVersion    = attribute.Key("opsflow.rule_version")
	AttrOutcome        = attribute.Key("opsflow.outcome")
	AttrEntitiesLoaded = attribute.Key("opsflow.entities_loaded")
)

// Start opens an internal span on the automation tracer.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(automationTracer).Start(ctx, name, trace.WithAttributes(attrs...))
}

func EventAttributes(event models.AppEvent) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrOrgID.String(event.OrgID),
		AttrEventID.String(event.ID),
		AttrEventType.String(event.EventType),
	}
}

func RuleAttributes(ruleID string, version int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrRuleID.String(ruleID),
		AttrRuleVersion.Int(version),
	}
}

// RecordError marks the span failed. A nil error is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
