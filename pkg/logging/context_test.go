package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithOrgID(ctx, "org-1")
	ctx = WithEventID(ctx, "evt-1")
	ctx = WithServiceName(ctx, "automation-worker")

	assert.Equal(t, []interface{}{
		"trace_id", "trace-1",
		"org_id", "org-1",
		"event_id", "evt-1",
		"service_name", "automation-worker",
	}, GetLogFields(ctx))
}

func TestGetters_MissingValues(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", GetTraceID(ctx))
	assert.Equal(t, "", GetEventID(ctx))
	assert.Equal(t, "", GetOrgID(ctx))
	assert.Equal(t, "", GetServiceName(ctx))
}
