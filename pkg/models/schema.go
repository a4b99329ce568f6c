package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateAppEvent(event *AppEvent) error {
	if event == nil {
		return &ValidationError{
			Field:   "event",
			Message: "event cannot be nil",
		}
	}

	if event.ID == "" {
		return &ValidationError{
			Field:   "id",
			Message: "event ID is required",
		}
	}

	if event.OrgID == "" {
		return &ValidationError{
			Field:   "org_id",
			Message: "event org ID is required",
		}
	}

	if event.EventType == "" {
		return &ValidationError{
			Field:   "event_type",
			Message: "event type is required",
		}
	}

	if event.CreatedAt.IsZero() {
		return &ValidationError{
			Field:   "created_at",
			Message: "event timestamp is required",
		}
	}

	return nil
}
