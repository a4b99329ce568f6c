package automation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction_Types(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    ActionType
		wantErr string
	}{
		{"message email", `{"id":"m","type":"message.send","params":{"channel":"email","to":"a@b.co","templateId":"welcome"}}`, ActionSendMessage, ""},
		{"message needs body or template", `{"id":"m","type":"message.send","params":{"channel":"sms","to":"+1"}}`, "", "body failed required_without"},
		{"message bad channel", `{"id":"m","type":"message.send","params":{"channel":"fax","to":"+1","body":"x"}}`, "", "channel failed oneof"},
		{"notification by user", `{"id":"n","type":"notification.create","params":{"userId":"u1","title":"Hi"}}`, ActionCreateNotification, ""},
		{"notification needs target", `{"id":"n","type":"notification.create","params":{"title":"Hi"}}`, "", "userId failed required_without"},
		{"job update", `{"id":"j","type":"job.update","params":{"status":"invoiced"}}`, ActionUpdateJob, ""},
		{"schedule update needs fields", `{"id":"s","type":"schedule.update","params":{"fields":{}}}`, "", "fields failed min"},
		{"schedule create", `{"id":"s","type":"schedule.create","params":{"crewId":"c1","startOffsetHours":24,"durationHours":2}}`, ActionCreateSchedule, ""},
		{"materials zero", `{"id":"m","type":"materials.adjust","params":{"quantity":0}}`, "", "quantity failed ne"},
		{"task", `{"id":"t","type":"task.create","params":{"title":"Follow up","dueInHours":48}}`, ActionCreateTask, ""},
		{"webhook", `{"id":"w","type":"webhook.call","params":{"url":"https://hooks.example.com/x","method":"POST"}}`, ActionCallWebhook, ""},
		{"webhook method", `{"id":"w","type":"webhook.call","params":{"url":"https://hooks.example.com/x","method":"TRACE"}}`, "", "method failed oneof"},
		{"invoice line items", `{"id":"i","type":"invoice.draft","params":{"lineItems":[{"description":"Labor","quantity":2,"unitPrice":80}]}}`, ActionDraftInvoice, ""},
		{"invoice bad line", `{"id":"i","type":"invoice.draft","params":{"lineItems":[{"description":"Labor","quantity":0}]}}`, "", "lineItems[0].quantity failed gt"},
		{"integration", `{"id":"e","type":"integration.emit","params":{"integration":"quickbooks","eventName":"job.closed"}}`, ActionEmitIntegrationEvent, ""},
		{"null params", `{"id":"e","type":"integration.emit","params":null}`, "", "integration failed required"},
		{"unknown field", `{"id":"t","type":"task.create","params":{"title":"x","priority":"high"}}`, "", "unknown field"},
		{"missing id", `{"type":"task.create","params":{"title":"x"}}`, "", "action id is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, action, err := parseAction(json.RawMessage(tt.raw))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, action.Type())
		})
	}
}

func TestNextAttemptAt(t *testing.T) {
	now := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

	delayed := Action{ID: "m", Params: &SendMessageParams{Channel: "sms", To: "+1", Body: "x", DelayMinutes: 90}}
	at := NextAttemptAt(delayed, now)
	require.NotNil(t, at)
	assert.True(t, now.Add(90*time.Minute).Equal(*at))

	assert.Nil(t, NextAttemptAt(Action{ID: "t", Params: &CreateTaskParams{Title: "x"}}, now))
	assert.Nil(t, NextAttemptAt(Action{ID: "w", Params: &CallWebhookParams{URL: "https://x.io"}}, now))
}

func TestActionParamsJSON(t *testing.T) {
	raw, err := json.Marshal(&UpdateJobParams{Status: "closed"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"closed"}`, string(raw))
}
