package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSnapshot_Redacts(t *testing.T) {
	data := map[string]interface{}{
		"contact": map[string]interface{}{
			"email":       "a@b.co",
			"ssn":         "123-45-6789",
			"api_key":     "k",
			"className":   "residential",
			"credentials": []interface{}{map[string]interface{}{"password": "p"}},
		},
		"payload": map[string]interface{}{
			"items": []interface{}{map[string]interface{}{"Authorization": "Bearer x", "sku": "A1"}},
		},
	}

	snap := buildSnapshot(data)

	contact := snap["contact"].(map[string]interface{})
	assert.Equal(t, "a@b.co", contact["email"])
	assert.Equal(t, redacted, contact["ssn"])
	assert.Equal(t, redacted, contact["api_key"])
	assert.Equal(t, "residential", contact["className"])
	assert.Equal(t, redacted, contact["credentials"])

	item := snap["payload"].(map[string]interface{})["items"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, redacted, item["Authorization"])
	assert.Equal(t, "A1", item["sku"])

	// The source context is untouched.
	assert.Equal(t, "123-45-6789", data["contact"].(map[string]interface{})["ssn"])
}

func TestBuildSnapshot_Nil(t *testing.T) {
	assert.Nil(t, buildSnapshot(nil))
}
