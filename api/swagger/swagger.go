package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Bible School API",
        "description": "Academic progression workflow for the church training program",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Commands", "description": "Application, enrollment, grading, promotion and graduation commands"},
        {"name": "Programs", "description": "Training program catalogue"},
        {"name": "Certificates", "description": "Signed certificate downloads"},
        {"name": "Authentication", "description": "Caller identity"}
    ],
    "paths": {
        "/commands": {
            "post": {
                "tags": ["Commands"],
                "summary": "Execute a training workflow command",
                "description": "Commands: APPLY, APPROVE_APPLICATION, REJECT_APPLICATION, RECORD_ATTENDANCE, SUBMIT_EXAM, PROMOTE_STUDENT, GRADUATE_STUDENT.",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CommandEnvelope"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Insufficient privilege", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Referenced entity not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/programs": {
            "get": {
                "tags": ["Programs"],
                "summary": "List training programs",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current caller",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/certificates/{token}": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Download a graduation certificate via signed token",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF document", "schema": {"type": "file"}},
                    "403": {"description": "Invalid or expired link", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CommandEnvelope": {
            "type": "object",
            "required": ["command", "data"],
            "properties": {
                "command": {
                    "type": "string",
                    "enum": ["APPLY", "APPROVE_APPLICATION", "REJECT_APPLICATION", "RECORD_ATTENDANCE", "SUBMIT_EXAM", "PROMOTE_STUDENT", "GRADUATE_STUDENT"]
                },
                "data": {"type": "object"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
