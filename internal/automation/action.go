package automation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type ActionType string

const (
	ActionSendMessage          ActionType = "message.send"
	ActionCreateNotification   ActionType = "notification.create"
	ActionUpdateJob            ActionType = "job.update"
	ActionUpdateSchedule       ActionType = "schedule.update"
	ActionCreateSchedule       ActionType = "schedule.create"
	ActionAdjustMaterials      ActionType = "materials.adjust"
	ActionCreateTask           ActionType = "task.create"
	ActionCallWebhook          ActionType = "webhook.call"
	ActionDraftInvoice         ActionType = "invoice.draft"
	ActionEmitIntegrationEvent ActionType = "integration.emit"
)

// Action is one configured side effect of a rule. ID is the action key,
// unique within the rule.
type Action struct {
	ID     string
	Params ActionParams
}

func (a Action) Type() ActionType {
	return a.Params.ActionType()
}

// ActionParams is implemented only by the parameter types in this file.
type ActionParams interface {
	ActionType() ActionType
	sealed()
}

type SendMessageParams struct {
	Channel      string `json:"channel" validate:"required,oneof=email sms"`
	To           string `json:"to" validate:"required"`
	TemplateID   string `json:"templateId,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Body         string `json:"body,omitempty" validate:"required_without=TemplateID"`
	DelayMinutes int    `json:"delayMinutes,omitempty" validate:"gte=0,lte=10080"`
}

type CreateNotificationParams struct {
	UserID       string `json:"userId,omitempty" validate:"required_without=Role"`
	Role         string `json:"role,omitempty"`
	Title        string `json:"title" validate:"required,max=200"`
	Body         string `json:"body,omitempty"`
	Link         string `json:"link,omitempty"`
	DelayMinutes int    `json:"delayMinutes,omitempty" validate:"gte=0,lte=10080"`
}

type UpdateJobParams struct {
	JobID  string                 `json:"jobId,omitempty"`
	Status string                 `json:"status,omitempty" validate:"required_without=Fields"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

type UpdateScheduleParams struct {
	AssignmentID string                 `json:"assignmentId,omitempty"`
	Fields       map[string]interface{} `json:"fields" validate:"required,min=1"`
}

type CreateScheduleParams struct {
	JobID            string  `json:"jobId,omitempty"`
	CrewID           string  `json:"crewId" validate:"required"`
	StartOffsetHours float64 `json:"startOffsetHours" validate:"gte=0"`
	DurationHours    float64 `json:"durationHours" validate:"gt=0"`
	Notes            string  `json:"notes,omitempty"`
}

type AdjustMaterialsParams struct {
	MaterialID string  `json:"materialId,omitempty"`
	Quantity   float64 `json:"quantity" validate:"ne=0"`
	Reason     string  `json:"reason,omitempty"`
}

type CreateTaskParams struct {
	Title        string  `json:"title" validate:"required,max=200"`
	Description  string  `json:"description,omitempty"`
	AssigneeID   string  `json:"assigneeId,omitempty"`
	DueInHours   float64 `json:"dueInHours,omitempty" validate:"gte=0"`
	DelayMinutes int     `json:"delayMinutes,omitempty" validate:"gte=0,lte=10080"`
}

type CallWebhookParams struct {
	URL     string                 `json:"url" validate:"required,url"`
	Method  string                 `json:"method,omitempty" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Headers map[string]string      `json:"headers,omitempty"`
	Body    map[string]interface{} `json:"body,omitempty"`
}

type InvoiceLineItem struct {
	Description string  `json:"description" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	UnitPrice   float64 `json:"unitPrice" validate:"gte=0"`
}

type DraftInvoiceParams struct {
	JobID     string            `json:"jobId,omitempty"`
	ContactID string            `json:"contactId,omitempty"`
	LineItems []InvoiceLineItem `json:"lineItems,omitempty" validate:"dive"`
	DueInDays int               `json:"dueInDays,omitempty" validate:"gte=0"`
}

type EmitIntegrationEventParams struct {
	Integration string                 `json:"integration" validate:"required"`
	EventName   string                 `json:"eventName" validate:"required"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

func (*SendMessageParams) ActionType() ActionType          { return ActionSendMessage }
func (*CreateNotificationParams) ActionType() ActionType   { return ActionCreateNotification }
func (*UpdateJobParams) ActionType() ActionType            { return ActionUpdateJob }
func (*UpdateScheduleParams) ActionType() ActionType       { return ActionUpdateSchedule }
func (*CreateScheduleParams) ActionType() ActionType       { return ActionCreateSchedule }
func (*AdjustMaterialsParams) ActionType() ActionType      { return ActionAdjustMaterials }
func (*CreateTaskParams) ActionType() ActionType           { return ActionCreateTask }
func (*CallWebhookParams) ActionType() ActionType          { return ActionCallWebhook }
func (*DraftInvoiceParams) ActionType() ActionType         { return ActionDraftInvoice }
func (*EmitIntegrationEventParams) ActionType() ActionType { return ActionEmitIntegrationEvent }

func (*SendMessageParams) sealed()          {}
func (*CreateNotificationParams) sealed()   {}
func (*UpdateJobParams) sealed()            {}
func (*UpdateScheduleParams) sealed()       {}
func (*CreateScheduleParams) sealed()       {}
func (*AdjustMaterialsParams) sealed()      {}
func (*CreateTaskParams) sealed()           {}
func (*CallWebhookParams) sealed()          {}
func (*DraftInvoiceParams) sealed()         {}
func (*EmitIntegrationEventParams) sealed() {}

func newActionParams(t ActionType) (ActionParams, bool) {
	switch t {
	case ActionSendMessage:
		return &SendMessageParams{}, true
	case ActionCreateNotification:
		return &CreateNotificationParams{}, true
	case ActionUpdateJob:
		return &UpdateJobParams{}, true
	case ActionUpdateSchedule:
		return &UpdateScheduleParams{}, true
	case ActionCreateSchedule:
		return &CreateScheduleParams{}, true
	case ActionAdjustMaterials:
		return &AdjustMaterialsParams{}, true
	case ActionCreateTask:
		return &CreateTaskParams{}, true
	case ActionCallWebhook:
		return &CallWebhookParams{}, true
	case ActionDraftInvoice:
		return &DraftInvoiceParams{}, true
	case ActionEmitIntegrationEvent:
		return &EmitIntegrationEventParams{}, true
	default:
		return nil, false
	}
}

// actionDelay is how long the dispatcher must wait before the first attempt.
func actionDelay(p ActionParams) time.Duration {
	switch params := p.(type) {
	case *SendMessageParams:
		return time.Duration(params.DelayMinutes) * time.Minute
	case *CreateNotificationParams:
		return time.Duration(params.DelayMinutes) * time.Minute
	case *CreateTaskParams:
		return time.Duration(params.DelayMinutes) * time.Minute
	case *UpdateJobParams, *UpdateScheduleParams, *CreateScheduleParams, *AdjustMaterialsParams,
		*CallWebhookParams, *DraftInvoiceParams, *EmitIntegrationEventParams:
		return 0
	default:
		return 0
	}
}

// NextAttemptAt is nil for immediate actions.
func NextAttemptAt(a Action, now time.Time) *time.Time {
	delay := actionDelay(a.Params)
	if delay <= 0 {
		return nil
	}
	at := now.Add(delay).UTC()
	return &at
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type rawAction struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

// parseAction decodes and validates one action item. Unknown parameter
// fields are rejected so typos do not silently disappear.
func parseAction(raw json.RawMessage) (rawAction, Action, error) {
	var item rawAction
	if err := json.Unmarshal(raw, &item); err != nil {
		return item, Action{}, fmt.Errorf("action must be an object: %w", err)
	}

	if strings.TrimSpace(item.ID) == "" {
		return item, Action{}, fmt.Errorf("action id is required")
	}

	params, ok := newActionParams(ActionType(item.Type))
	if !ok {
		return item, Action{}, fmt.Errorf("unknown action type %q", item.Type)
	}

	if len(item.Params) > 0 && !bytes.Equal(bytes.TrimSpace(item.Params), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(item.Params))
		dec.DisallowUnknownFields()
		if err := dec.Decode(params); err != nil {
			return item, Action{}, fmt.Errorf("invalid params for %s: %w", item.Type, err)
		}
	}

	if err := validate.Struct(params); err != nil {
		return item, Action{}, fmt.Errorf("invalid params for %s: %s", item.Type, describeValidation(err))
	}

	return item, Action{ID: item.ID, Params: params}, nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
