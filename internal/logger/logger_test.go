package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsflow/internal/config"
	"opsflow/pkg/logging"
)

func TestNewFromConfig_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "automation.log")

	log, err := NewFromConfig(config.LoggingConfig{
		Level:  "debug",
		Format: "json",
		File:   config.LogFileConfig{Path: path, MaxSizeMB: 1},
	})
	require.NoError(t, err)

	ctx := logging.WithOrgID(context.Background(), "org-1")
	log.InfowCtx(ctx, "rule run recorded", "rule_id", "r-1")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"rule run recorded"`)
	assert.Contains(t, string(data), `"org_id":"org-1"`)
	assert.Contains(t, string(data), `"rule_id":"r-1"`)
}

func TestGetContextFields_ServiceNameFallback(t *testing.T) {
	l := &SugaredLogger{}
	l.SetServiceName("automation-worker")

	fields := l.getContextFields(context.Background())
	assert.Equal(t, []interface{}{"service_name", "automation-worker"}, fields)

	ctx := logging.WithServiceName(context.Background(), "automation-api")
	fields = l.getContextFields(ctx)
	assert.Equal(t, []interface{}{"service_name", "automation-api"}, fields)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("debug").String())
	assert.Equal(t, "warn", parseLevel("warn").String())
	assert.Equal(t, "error", parseLevel("error").String())
	assert.Equal(t, "info", parseLevel("bogus").String())
}
