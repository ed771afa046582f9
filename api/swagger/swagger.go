package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "MoraCollect API",
        "description": "Contribution consistency engine for recorded audio submissions.",
        "version": "1.0.0"
    },
    "basePath": "/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Submissions", "description": "Register and delete recorded submissions"},
        {"name": "Profile", "description": "Caller identity and display preferences"},
        {"name": "Listings", "description": "Collection and item counters, leaderboard"},
        {"name": "Admin", "description": "Operator procedures, admin role required"}
    ],
    "paths": {
        "/submissions": {
            "post": {
                "tags": ["Submissions"],
                "summary": "Register an uploaded submission",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/RegisterSubmissionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Registered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "200": {"description": "Already registered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthenticated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Submission id owned by another contributor or item", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/submissions/{id}": {
            "delete": {
                "tags": ["Submissions"],
                "summary": "Delete one of the caller's submissions",
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "Deleted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the owner", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown submission", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Ledger updated but blob cleanup failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/me/submissions": {
            "get": {
                "tags": ["Submissions"],
                "summary": "List the caller's submissions, newest first",
                "parameters": [
                    {"in": "query", "name": "cursor", "type": "string"},
                    {"in": "query", "name": "limit", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/me/profile": {
            "patch": {
                "tags": ["Profile"],
                "summary": "Update the caller's display preferences",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/UpdateProfileRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ping": {
            "get": {
                "tags": ["Profile"],
                "summary": "Echo the verified identity",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/collections": {
            "get": {
                "tags": ["Listings"],
                "summary": "List active collections with contribution counts",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/collections/{collectionId}/items": {
            "get": {
                "tags": ["Listings"],
                "summary": "List active items of a collection with contribution counts",
                "parameters": [
                    {"in": "path", "name": "collectionId", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown or inactive collection", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/leaderboard": {
            "get": {
                "tags": ["Listings"],
                "summary": "Top contributors by lifetime submissions",
                "parameters": [
                    {"in": "query", "name": "limit", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/snapshots/rebuild": {
            "post": {
                "tags": ["Admin"],
                "summary": "Recompute every listing snapshot from the counters",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Admin role required", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/contributor-totals/backfill": {
            "post": {
                "tags": ["Admin"],
                "summary": "Recount contributor totals from the ledger",
                "parameters": [
                    {"in": "query", "name": "dry_run", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/stats/export": {
            "get": {
                "tags": ["Admin"],
                "summary": "Download collection or item stats",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"in": "query", "name": "format", "type": "string", "enum": ["csv", "pdf"]},
                    {"in": "query", "name": "collection_id", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Stats file"}
                }
            }
        },
        "/admin/orphans/collect": {
            "post": {
                "tags": ["Admin"],
                "summary": "Delete raw and derived blobs of unregistered submissions",
                "parameters": [
                    {"in": "query", "name": "dry_run", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CaptureMetadata": {
            "type": "object",
            "properties": {
                "mime_type": {"type": "string"},
                "size_bytes": {"type": "integer"},
                "duration_ms": {"type": "integer"}
            }
        },
        "RegisterSubmissionRequest": {
            "type": "object",
            "required": ["submission_id", "object_path", "item_id", "collection_id"],
            "properties": {
                "submission_id": {"type": "string", "format": "uuid"},
                "object_path": {"type": "string"},
                "item_id": {"type": "string"},
                "collection_id": {"type": "string"},
                "capture_metadata": {"$ref": "#/definitions/CaptureMetadata"},
                "client_metadata": {"type": "object"}
            }
        },
        "UpdateProfileRequest": {
            "type": "object",
            "properties": {
                "display_name": {"type": "string"},
                "leaderboard_hidden": {"type": "boolean"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "limit": {"type": "integer"},
                "next_cursor": {"type": "string"},
                "has_more": {"type": "boolean"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "retryable": {"type": "boolean"}
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
