// Package docs registers the OpenAPI document served at /swagger. Regenerate
// with `swag init -g cmd/automation-api/main.go` after changing handler
// annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/orgs/{orgId}/automations/test": {
            "post": {
                "description": "Evaluate stored rules, one stored rule, or an unsaved rule against a synthetic event. Nothing is written.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["automations"],
                "summary": "Dry-run automation rules",
                "parameters": [
                    {"type": "string", "description": "Organization ID", "name": "orgId", "in": "path", "required": true},
                    {"description": "Synthetic event", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.TestRulesRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.TestRulesResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal Server Error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/orgs/{orgId}/automations/events/replay": {
            "post": {
                "description": "Publishes the event to the ingestion topic. Reusing an event id is safe: runs are idempotent per rule and event.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["automations"],
                "summary": "Replay an event through the worker",
                "parameters": [
                    {"type": "string", "description": "Organization ID", "name": "orgId", "in": "path", "required": true},
                    {"description": "Event to replay", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.ReplayEventRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/api.ReplayEventResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/orgs/{orgId}/automations/runs": {
            "get": {
                "description": "Runs for an org, newest first, optionally narrowed to an entity or a rule",
                "produces": ["application/json"],
                "tags": ["automations"],
                "summary": "List automation runs",
                "parameters": [
                    {"type": "string", "description": "Organization ID", "name": "orgId", "in": "path", "required": true},
                    {"type": "string", "description": "Entity type", "name": "entityType", "in": "query"},
                    {"type": "string", "description": "Entity ID", "name": "entityId", "in": "query"},
                    {"type": "string", "description": "Rule ID", "name": "ruleId", "in": "query"},
                    {"type": "integer", "description": "Page size", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/automation.Run"}}},
                    "500": {"description": "Internal Server Error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/orgs/{orgId}/automations/runs/{runId}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["automations"],
                "summary": "Get an automation run",
                "parameters": [
                    {"type": "string", "description": "Organization ID", "name": "orgId", "in": "path", "required": true},
                    {"type": "string", "description": "Run ID", "name": "runId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/automation.Run"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal Server Error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/orgs/{orgId}/automations/runs/{runId}/outbox": {
            "get": {
                "produces": ["application/json"],
                "tags": ["automations"],
                "summary": "List the outbox entries of a run",
                "parameters": [
                    {"type": "string", "description": "Organization ID", "name": "orgId", "in": "path", "required": true},
                    {"type": "string", "description": "Run ID", "name": "runId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/automation.OutboxEntry"}}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal Server Error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "api.TestRulesRequest": {
            "type": "object",
            "required": ["eventType"],
            "properties": {
                "eventType": {"type": "string"},
                "eventId": {"type": "string"},
                "payload": {"type": "object", "additionalProperties": true},
                "ruleId": {"type": "string"},
                "rule": {"$ref": "#/definitions/automation.RuleRecord"}
            }
        },
        "api.TestRulesResponse": {
            "type": "object",
            "properties": {
                "results": {"type": "array", "items": {"$ref": "#/definitions/automation.DryRunResult"}}
            }
        },
        "api.ReplayEventRequest": {
            "type": "object",
            "required": ["eventType", "payload"],
            "properties": {
                "id": {"type": "string"},
                "eventType": {"type": "string"},
                "payload": {"type": "object", "additionalProperties": true},
                "createdAt": {"type": "string", "format": "date-time"}
            }
        },
        "api.ReplayEventResponse": {
            "type": "object",
            "properties": {
                "eventId": {"type": "string"},
                "topic": {"type": "string"}
            }
        },
        "automation.RuleRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "isEnabled": {"type": "boolean"},
                "triggerType": {"type": "string"},
                "triggerFilters": {"type": "object", "additionalProperties": true},
                "conditions": {"type": "array", "items": {"type": "object", "additionalProperties": true}},
                "actions": {"type": "array", "items": {"type": "object", "additionalProperties": true}},
                "throttle": {"type": "object", "additionalProperties": true},
                "version": {"type": "integer"}
            }
        },
        "automation.DryRunResult": {
            "type": "object",
            "properties": {
                "ruleId": {"type": "string"},
                "ruleName": {"type": "string"},
                "verdict": {"type": "string", "enum": ["invalid", "skipped", "matched"]},
                "reason": {"type": "string"},
                "trace": {"type": "array", "items": {"type": "object", "additionalProperties": true}},
                "actions": {"type": "array", "items": {"type": "object", "additionalProperties": true}},
                "warnings": {"type": "array", "items": {"type": "object", "additionalProperties": true}}
            }
        },
        "automation.Run": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "orgId": {"type": "string"},
                "ruleId": {"type": "string"},
                "ruleVersion": {"type": "integer"},
                "eventId": {"type": "string"},
                "eventType": {"type": "string"},
                "parentEventId": {"type": "string"},
                "entityType": {"type": "string"},
                "entityId": {"type": "string"},
                "jobId": {"type": "string"},
                "status": {"type": "string", "enum": ["queued", "skipped", "succeeded", "failed"]},
                "reason": {"type": "string"},
                "logs": {"type": "array", "items": {"type": "object", "additionalProperties": true}},
                "snapshot": {"type": "object", "additionalProperties": true},
                "lineageDepth": {"type": "integer"},
                "createdAt": {"type": "string", "format": "date-time"},
                "updatedAt": {"type": "string", "format": "date-time"}
            }
        },
        "automation.OutboxEntry": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "orgId": {"type": "string"},
                "runId": {"type": "string"},
                "ruleId": {"type": "string"},
                "eventId": {"type": "string"},
                "actionType": {"type": "string"},
                "actionKey": {"type": "string"},
                "actionPayload": {"type": "object", "additionalProperties": true},
                "status": {"type": "string", "enum": ["queued", "processing", "sent", "failed"]},
                "attempts": {"type": "integer"},
                "lastError": {"type": "string"},
                "nextAttemptAt": {"type": "string", "format": "date-time"},
                "providerMessageId": {"type": "string"},
                "createdAt": {"type": "string", "format": "date-time"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Opsflow Automation API",
	Description:      "Dry runs, run audit queries and event replay for the automation engine.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
