// Package swagger serves the handwritten OpenAPI document for the
// attendance engine.
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Geo Attendance API",
        "description": "Geolocation-verified attendance session engine",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Sessions", "description": "Attendance session lifecycle"},
        {"name": "Attendance", "description": "Marking, history, rosters"},
        {"name": "Tokens", "description": "QR attendance token issuance"},
        {"name": "Notifications", "description": "Realtime channel and webhooks"}
    ],
    "paths": {
        "/api/v1/sessions": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Start an attendance session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StartSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not assigned to course"}
                }
            },
            "get": {
                "tags": ["Sessions"],
                "summary": "List sessions visible to the caller",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "enum": ["active", "ended", "cancelled"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/sessions/active": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Active sessions for the calling student with marking state",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/sessions/stats": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Session and attendance aggregates for dashboards",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/sessions/{id}": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Fetch one session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/api/v1/sessions/{id}/end": {
            "post": {
                "tags": ["Sessions"],
                "summary": "End an active session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Ended", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Session not active"}
                }
            }
        },
        "/api/v1/sessions/{id}/cancel": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Cancel an active session without counting attendance",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Cancelled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Session not active"}
                }
            }
        },
        "/api/v1/sessions/{id}/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Attendance roster for one session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/sessions/{id}/token": {
            "post": {
                "tags": ["Tokens"],
                "summary": "Issue a QR attendance token for an active session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/IssueTokenRequest"}}
                ],
                "responses": {
                    "201": {"description": "Issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Session not active"}
                }
            }
        },
        "/api/v1/sessions/{id}/token/refresh": {
            "post": {
                "tags": ["Tokens"],
                "summary": "Rotate the session QR token, revoking the previous one",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/IssueTokenRequest"}}
                ],
                "responses": {
                    "201": {"description": "Issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/attendance/mark": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark attendance with GPS coordinates",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MarkByLocationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Marked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not enrolled"},
                    "409": {"description": "Already marked or session not active"}
                }
            }
        },
        "/api/v1/attendance/scan": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark attendance by scanning a session QR token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MarkByTokenRequest"}}
                ],
                "responses": {
                    "201": {"description": "Marked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid token"},
                    "409": {"description": "Already marked or session not active"}
                }
            }
        },
        "/api/v1/attendance/history": {
            "get": {
                "tags": ["Attendance"],
                "summary": "The calling student's attendance history, newest first",
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/notifications/ws": {
            "get": {
                "tags": ["Notifications"],
                "summary": "Upgrade to the student notification websocket",
                "responses": {
                    "101": {"description": "Switching protocols"},
                    "403": {"description": "Students only"}
                }
            }
        }
    },
    "definitions": {
        "StartSessionRequest": {
            "type": "object",
            "required": ["course_id", "title", "classroom_name", "allowed_radius", "scheduled_duration"],
            "properties": {
                "course_id": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "classroom_name": {"type": "string"},
                "classroom_latitude": {"type": "number"},
                "classroom_longitude": {"type": "number"},
                "allowed_radius": {"type": "integer", "minimum": 10, "maximum": 500},
                "scheduled_duration": {"type": "integer", "description": "Minutes until auto-end"}
            }
        },
        "MarkByLocationRequest": {
            "type": "object",
            "required": ["session_id"],
            "properties": {
                "session_id": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"}
            }
        },
        "MarkByTokenRequest": {
            "type": "object",
            "required": ["token"],
            "properties": {
                "token": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"}
            }
        },
        "IssueTokenRequest": {
            "type": "object",
            "properties": {
                "ttl_seconds": {"type": "integer", "minimum": 30, "maximum": 3600},
                "max_uses": {"type": "integer", "description": "0 means unlimited"},
                "old_token": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
