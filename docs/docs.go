// Package docs registers the OpenAPI document served at /swagger/doc.json.
// Regenerate with: swag init -g cmd/xpost/main.go -o docs
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
        "/posts": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Publishes text with the stored token, or starts an authorization and returns its URL",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Posts"],
                "summary": "Publish a post",
                "parameters": [
                    {
                        "description": "Post to publish",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/http.CreatePostRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Post published", "schema": {"$ref": "#/definitions/driving.AuthorizationOutcome"}},
                    "202": {"description": "Authorization required", "schema": {"$ref": "#/definitions/driving.AuthorizationOutcome"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/driving.OAuthError"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/driving.OAuthError"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/driving.OAuthError"}}
                }
            }
        },
        "/oauth/authorize": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Returns an authorization URL when no usable token is stored",
                "produces": ["application/json"],
                "tags": ["OAuth"],
                "summary": "Start authorization",
                "responses": {
                    "200": {"description": "Already authorized", "schema": {"$ref": "#/definitions/driving.AuthorizationOutcome"}},
                    "202": {"description": "Authorization required", "schema": {"$ref": "#/definitions/driving.AuthorizationOutcome"}}
                }
            }
        },
        "/oauth/status": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Reports the lifecycle state and stored token metadata",
                "produces": ["application/json"],
                "tags": ["OAuth"],
                "summary": "Authorization status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/driving.AuthorizationStatus"}}
                }
            }
        },
        "/oauth/token": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "description": "Clears the stored token",
                "tags": ["OAuth"],
                "summary": "Sign out",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        }
    },
    "definitions": {
        "domain.ActionResult": {
            "type": "object",
            "properties": {
                "link": {"type": "string"},
                "message": {"type": "string"},
                "post_id": {"type": "string"}
            }
        },
        "domain.TokenSummary": {
            "type": "object",
            "properties": {
                "can_refresh": {"type": "boolean"},
                "expires_at": {"type": "string"},
                "has_token": {"type": "boolean"},
                "scopes": {"type": "array", "items": {"type": "string"}}
            }
        },
        "driving.AuthorizationOutcome": {
            "description": "Result of an authorization-gated action",
            "type": "object",
            "properties": {
                "authorization_url": {"type": "string", "example": "https://x.com/i/oauth2/authorize?client_id=..."},
                "expires_at": {"type": "string", "example": "2025-01-15T10:10:00Z"},
                "result": {"$ref": "#/definitions/domain.ActionResult"},
                "state": {"type": "string", "example": "Q2VKY4XRVNWCLTYJ3B7OZ4FHTQ"}
            }
        },
        "driving.AuthorizationStatus": {
            "description": "Current authorization state",
            "type": "object",
            "properties": {
                "state": {"type": "string", "example": "authorized"},
                "token": {"$ref": "#/definitions/domain.TokenSummary"}
            }
        },
        "driving.OAuthError": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "invalid_state"},
                "error_description": {"type": "string", "example": "The state parameter is invalid or expired"}
            }
        },
        "http.CreatePostRequest": {
            "description": "Post to publish",
            "type": "object",
            "properties": {
                "text": {"type": "string", "example": "hello from xpost"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Operator JWT. Format: \"Bearer {token}\"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:5000",
	BasePath:         "/api/v1",
	Schemes:          []string{"http"},
	Title:            "xpost API",
	Description:      "Posts to X on behalf of a single user, authorizing through OAuth2 with PKCE.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
