// Package docs registers the OpenAPI description served at /docs.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/view": {"get": {"tags": ["tournaments"], "summary": "Get tournament view", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
        "/tournaments": {"post": {"tags": ["tournaments"], "summary": "Create tournament", "consumes": ["application/json"], "responses": {"201": {"description": "Created"}, "400": {"description": "Invalid", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}}}},
        "/tournaments/select": {"post": {"tags": ["tournaments"], "summary": "Select tournament", "consumes": ["application/json"], "responses": {"200": {"description": "OK"}}}},
        "/tournaments/end": {"post": {"tags": ["tournaments"], "summary": "End tournament", "responses": {"204": {"description": "No Content"}, "409": {"description": "No selection", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}}}},
        "/matches/{matchID}": {"patch": {"tags": ["matches"], "summary": "Update match", "consumes": ["application/json"], "parameters": [{"type": "string", "name": "matchID", "in": "path", "required": true}], "responses": {"202": {"description": "Accepted"}, "409": {"description": "Status regression", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}, "423": {"description": "Console locked", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}}}},
        "/ads": {"post": {"tags": ["ads"], "summary": "Add sponsor ad", "consumes": ["application/json"], "responses": {"201": {"description": "Created"}}}},
        "/ads/{adID}": {"delete": {"tags": ["ads"], "summary": "Delete sponsor ad", "parameters": [{"type": "string", "name": "adID", "in": "path", "required": true}], "responses": {"204": {"description": "No Content"}}}},
        "/ads/{adID}/toggle": {"post": {"tags": ["ads"], "summary": "Toggle sponsor ad", "parameters": [{"type": "string", "name": "adID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/commands": {"post": {"tags": ["commands"], "summary": "Send console command", "consumes": ["application/json"], "responses": {"202": {"description": "Accepted"}, "403": {"description": "Not master", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}}}},
        "/snapshot": {"get": {"tags": ["commands"], "summary": "Get game-state snapshot", "responses": {"200": {"description": "OK"}, "404": {"description": "No snapshot"}}}},
        "/surface": {"get": {"tags": ["commands"], "summary": "Get console surface", "responses": {"200": {"description": "OK"}}}},
        "/arbitration": {"get": {"tags": ["arbitration"], "summary": "Get arbitration status", "responses": {"200": {"description": "OK"}}}},
        "/arbitration/force": {"post": {"tags": ["arbitration"], "summary": "Force arbitration", "responses": {"200": {"description": "OK"}}}},
        "/adbreak": {"get": {"tags": ["adbreak"], "summary": "Get ad-break slot", "responses": {"200": {"description": "OK"}}}},
        "/adbreak/override": {"post": {"tags": ["adbreak"], "summary": "Override ad break", "responses": {"200": {"description": "OK"}}}},
        "/adbreak/hide": {"post": {"tags": ["adbreak"], "summary": "Hide ads", "responses": {"200": {"description": "OK"}}}},
        "/adbreak/ended": {"post": {"tags": ["adbreak"], "summary": "Report creative ended", "responses": {"200": {"description": "OK"}}}},
        "/audio": {"get": {"tags": ["audio"], "summary": "Get audio levels", "responses": {"200": {"description": "OK"}}}},
        "/audio/{deck}": {"put": {"tags": ["audio"], "summary": "Set deck volume", "parameters": [{"enum": ["main", "standby"], "type": "string", "name": "deck", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/audio/force-fade": {"post": {"tags": ["audio"], "summary": "Manual fade", "responses": {"200": {"description": "OK"}}}},
        "/player/events": {"post": {"tags": ["adbreak"], "summary": "Report player event", "responses": {"204": {"description": "No Content"}}}},
        "/stream": {"get": {"tags": ["stream"], "summary": "Console event stream", "produces": ["text/event-stream"], "responses": {"200": {"description": "OK"}}}},
        "/settings": {
            "get": {"tags": ["settings"], "summary": "Get settings", "responses": {"200": {"description": "OK"}}},
            "put": {"tags": ["settings"], "summary": "Update settings", "responses": {"200": {"description": "OK"}}}
        }
    },
    "definitions": {
        "respond.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "detail": {"type": "string"},
                        "message": {"type": "string"}
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{"http"},
	Title:            "Event Console API",
	Description:      "Local HTTP surface of one event console: tournament view, match scoring, sponsor ads, console commands, arbitration, ad-break scheduling and audio.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
