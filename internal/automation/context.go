package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"opsflow/internal/entities"
	"opsflow/pkg/models"
	"opsflow/pkg/tracing"
)

type entityRef struct {
	kind       string
	contextKey string
	payloadKey string
}

// primaryOrder is the fixed precedence for a run's primary entity.
var primaryOrder = []entityRef{
	{kind: entities.KindReport, contextKey: "report", payloadKey: "reportId"},
	{kind: entities.KindListing, contextKey: "listing", payloadKey: "listingId"},
	{kind: entities.KindAppraisal, contextKey: "appraisal", payloadKey: "appraisalId"},
	{kind: entities.KindContact, contextKey: "contact", payloadKey: "contactId"},
	{kind: entities.KindAssignment, contextKey: "assignment", payloadKey: "assignmentId"},
	{kind: entities.KindJob, contextKey: "job", payloadKey: "jobId"},
	{kind: entities.KindMaterial, contextKey: "material", payloadKey: "materialId"},
}

// payloadID reads an identifier under its camelCase or snake_case key.
func payloadID(payload map[string]interface{}, camel string) string {
	if id := stringValue(payload[camel]); id != "" {
		return id
	}
	return stringValue(payload[snakeCase(camel)])
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// contextResolver loads the entities an event refers to. It lives for one
// ProcessEvent pass and loads everything at most once.
type contextResolver struct {
	loader entities.Loader
	event  models.AppEvent

	resolved bool
	data     map[string]interface{}
	cache    map[string]map[string]interface{}
}

func newContextResolver(loader entities.Loader, event models.AppEvent) *contextResolver {
	return &contextResolver{
		loader: loader,
		event:  event,
		cache:  make(map[string]map[string]interface{}),
	}
}

// Resolve returns the evaluation context:
// {event, payload, job, material, contact, appraisal, listing, report, assignment}.
// Entities that are not referenced or not found are absent.
func (r *contextResolver) Resolve(ctx context.Context) (map[string]interface{}, error) {
	if r.resolved {
		return r.data, nil
	}

	ctx, span := tracing.Start(ctx, "automation.resolve_context", tracing.EventAttributes(r.event)...)
	defer span.End()

	payload := r.event.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}

	data := map[string]interface{}{
		"event": map[string]interface{}{
			"id":        r.event.ID,
			"type":      r.event.EventType,
			"orgId":     r.event.OrgID,
			"createdAt": r.event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
		"payload": payload,
	}

	for _, ref := range primaryOrder {
		id := payloadID(payload, ref.payloadKey)
		if id == "" {
			continue
		}
		entity, err := r.load(ctx, ref.kind, id)
		if err != nil {
			return nil, err
		}
		if entity != nil {
			data[ref.contextKey] = entity
		}
	}

	if _, hasJob := data["job"]; !hasJob {
		if assignment, ok := data["assignment"].(map[string]interface{}); ok {
			if jobID := payloadID(assignment, "jobId"); jobID != "" {
				job, err := r.load(ctx, entities.KindJob, jobID)
				if err != nil {
					return nil, err
				}
				if job != nil {
					data["job"] = job
				}
			}
		}
	}

	span.SetAttributes(tracing.AttrEntitiesLoaded.Int(len(r.cache)))

	r.data = data
	r.resolved = true
	return data, nil
}

func (r *contextResolver) load(ctx context.Context, kind, id string) (map[string]interface{}, error) {
	key := kind + ":" + id
	if entity, ok := r.cache[key]; ok {
		return entity, nil
	}
	if r.loader == nil {
		return nil, nil
	}

	entity, err := r.loader.Load(ctx, r.event.OrgID, kind, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", kind, id, err)
	}
	r.cache[key] = entity
	return entity, nil
}

// PrimaryEntity picks the run's entity by fixed precedence, preferring ids
// named in the payload over ids found on loaded entities.
func PrimaryEntity(payload, data map[string]interface{}) (entityType, entityID string) {
	for _, ref := range primaryOrder {
		if id := payloadID(payload, ref.payloadKey); id != "" {
			return ref.kind, id
		}
	}
	for _, ref := range primaryOrder {
		entity, ok := data[ref.contextKey].(map[string]interface{})
		if !ok {
			continue
		}
		if id := stringValue(entity["id"]); id != "" {
			return ref.kind, id
		}
	}
	return "", ""
}

// JobID is the job an event concerns, from the payload or the loaded job.
func JobID(payload, data map[string]interface{}) string {
	if id := payloadID(payload, "jobId"); id != "" {
		return id
	}
	if job, ok := data["job"].(map[string]interface{}); ok {
		return stringValue(job["id"])
	}
	return ""
}
