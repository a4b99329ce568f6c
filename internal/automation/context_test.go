package automation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsflow/internal/entities"
	"opsflow/pkg/models"
)

func TestContextResolver_LoadsReferencedEntities(t *testing.T) {
	store := newEntityStore()
	store.put(entities.KindContact, "C1", map[string]interface{}{"id": "C1", "email": "a@b.co"})
	store.put(entities.KindMaterial, "M1", map[string]interface{}{"id": "M1", "quantity": 4.0})

	resolver := newContextResolver(store, models.AppEvent{
		ID:        "evt-1",
		OrgID:     "org-1",
		EventType: models.EventTypeMaterialUsed,
		Payload: map[string]interface{}{
			"material_id": "M1",
			"contactId":   "C1",
			"listingId":   "L404",
		},
		CreatedAt: testNow,
	})

	data, err := resolver.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "a@b.co", data["contact"].(map[string]interface{})["email"])
	assert.Equal(t, 4.0, data["material"].(map[string]interface{})["quantity"])
	assert.NotContains(t, data, "listing")
	assert.NotContains(t, data, "job")

	event := data["event"].(map[string]interface{})
	assert.Equal(t, "evt-1", event["id"])
	assert.Equal(t, models.EventTypeMaterialUsed, event["type"])
	assert.Equal(t, "2025-03-12T15:30:00Z", event["createdAt"])
}

func TestContextResolver_FollowsAssignmentToJob(t *testing.T) {
	store := newEntityStore()
	store.put(entities.KindAssignment, "A1", map[string]interface{}{"id": "A1", "jobId": "J9", "crewId": "crew-2"})
	store.put(entities.KindJob, "J9", map[string]interface{}{"id": "J9", "status": "scheduled"})

	resolver := newContextResolver(store, models.AppEvent{
		ID:        "evt-1",
		OrgID:     "org-1",
		EventType: models.EventTypeScheduleUpdated,
		Payload:   map[string]interface{}{"assignmentId": "A1"},
	})

	data, err := resolver.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "scheduled", data["job"].(map[string]interface{})["status"])

	entityType, entityID := PrimaryEntity(map[string]interface{}{"assignmentId": "A1"}, data)
	assert.Equal(t, entities.KindAssignment, entityType)
	assert.Equal(t, "A1", entityID)
	assert.Equal(t, "J9", JobID(map[string]interface{}{"assignmentId": "A1"}, data))
}

func TestContextResolver_Memoizes(t *testing.T) {
	store := newEntityStore()
	store.put(entities.KindJob, "J1", map[string]interface{}{"id": "J1"})
	resolver := newContextResolver(store, jobCompletedEvent("evt-1", "J1"))

	first, err := resolver.Resolve(context.Background())
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.calls["job:J1"])
}

func TestContextResolver_LoaderError(t *testing.T) {
	boom := errors.New("timeout")
	loader := entities.LoaderFunc(func(ctx context.Context, orgID, kind, id string) (map[string]interface{}, error) {
		return nil, boom
	})

	_, err := newContextResolver(loader, jobCompletedEvent("evt-1", "J1")).Resolve(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestContextResolver_NilLoader(t *testing.T) {
	data, err := newContextResolver(nil, jobCompletedEvent("evt-1", "J1")).Resolve(context.Background())
	require.NoError(t, err)
	assert.Contains(t, data, "payload")
	assert.NotContains(t, data, "job")
}

func TestPrimaryEntity_Precedence(t *testing.T) {
	tests := []struct {
		name     string
		payload  map[string]interface{}
		data     map[string]interface{}
		wantType string
		wantID   string
	}{
		{
			name:     "report beats job",
			payload:  map[string]interface{}{"jobId": "J1", "reportId": "R1"},
			wantType: entities.KindReport,
			wantID:   "R1",
		},
		{
			name:     "listing beats appraisal",
			payload:  map[string]interface{}{"appraisal_id": "AP1", "listing_id": "L1"},
			wantType: entities.KindListing,
			wantID:   "L1",
		},
		{
			name:     "contact beats assignment",
			payload:  map[string]interface{}{"assignmentId": "A1", "contactId": "C1"},
			wantType: entities.KindContact,
			wantID:   "C1",
		},
		{
			name:     "job beats material",
			payload:  map[string]interface{}{"materialId": "M1", "jobId": "J1"},
			wantType: entities.KindJob,
			wantID:   "J1",
		},
		{
			name:     "numeric id",
			payload:  map[string]interface{}{"materialId": 42.0},
			wantType: entities.KindMaterial,
			wantID:   "42",
		},
		{
			name:     "loaded entity fallback",
			payload:  map[string]interface{}{},
			data:     map[string]interface{}{"job": map[string]interface{}{"id": "J7"}},
			wantType: entities.KindJob,
			wantID:   "J7",
		},
		{
			name:    "nothing",
			payload: map[string]interface{}{"note": "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entityType, entityID := PrimaryEntity(tt.payload, tt.data)
			assert.Equal(t, tt.wantType, entityType)
			assert.Equal(t, tt.wantID, entityID)
		})
	}
}
