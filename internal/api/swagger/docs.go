package swagger

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
        "/quote": {
            "get": {
                "description": "Resolves a freight quote through cache, live provider and estimate tiers. Always answers 200; provenance and flags describe how the price was obtained.",
                "produces": ["application/json"],
                "tags": ["quotes"],
                "summary": "Quote a lane",
                "parameters": [
                    {"type": "string", "name": "origin", "in": "query", "required": true},
                    {"type": "string", "name": "destination", "in": "query", "required": true},
                    {"type": "string", "enum": ["sea", "air"], "name": "mode", "in": "query"},
                    {"type": "string", "name": "X-User-ID", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Quote"}}
                }
            }
        },
        "/lanes": {
            "get": {
                "produces": ["application/json"],
                "tags": ["reference"],
                "summary": "List lanes with a bundled estimate",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/Lane"}}}
                }
            }
        },
        "/locations": {
            "get": {
                "produces": ["application/json"],
                "tags": ["reference"],
                "summary": "List known locations for a mode",
                "parameters": [
                    {"type": "string", "enum": ["sea", "air"], "name": "mode", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/Location"}}},
                    "400": {"description": "Unknown mode"}
                }
            }
        }
    },
    "definitions": {
        "Quote": {
            "type": "object",
            "properties": {
                "origin": {"type": "string"},
                "destination": {"type": "string"},
                "mode": {"type": "string"},
                "price": {"type": "string", "example": "2450"},
                "currency": {"type": "string", "example": "USD"},
                "transit_days": {"type": "integer"},
                "carrier": {"type": "string"},
                "valid_until": {"type": "string", "format": "date-time"},
                "provenance": {"type": "string", "enum": ["live", "cached", "estimated"]},
                "requires_entitlement": {"type": "boolean"},
                "is_estimate": {"type": "boolean"}
            }
        },
        "Lane": {
            "type": "object",
            "properties": {
                "origin": {"type": "string"},
                "destination": {"type": "string"},
                "mode": {"type": "string", "enum": ["sea", "air"]},
                "price": {"type": "string"},
                "currency": {"type": "string"},
                "transit_days": {"type": "integer"},
                "carrier": {"type": "string"}
            }
        },
        "Location": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "id": {"type": "string"}
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
	Title:            "Freight Rates API",
	Description:      "Quota-aware freight rate resolution.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
