package v1

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

type schema = map[string]any

func ref(name string) schema { return schema{"$ref": "#/components/schemas/" + name} }

func responseRef(name string) schema { return schema{"$ref": "#/components/responses/" + name} }

func jsonBody(s schema) schema {
	return schema{"content": schema{"application/json": schema{"schema": s}}}
}

func response(description string, s schema) schema {
	out := schema{"description": description}
	if s != nil {
		out["content"] = schema{"application/json": schema{"schema": s}}
	}
	return out
}

func pathParam(name, typ string) schema {
	return schema{"name": name, "in": "path", "required": true, "schema": schema{"type": typ}}
}

func queryParam(name string, s schema) schema {
	return schema{"name": name, "in": "query", "required": false, "schema": s}
}

func operation(summary string, params []schema, body schema, ok schema) schema {
	op := schema{
		"summary": summary,
		"responses": schema{
			"200": ok,
			"401": responseRef("UnauthorizedResponse"),
			"404": responseRef("NotFoundResponse"),
			"429": responseRef("RateLimitedResponse"),
		},
	}
	if len(params) > 0 {
		op["parameters"] = params
	}
	if body != nil {
		op["requestBody"] = body
		op["responses"].(schema)["400"] = responseRef("ValidationResponse")
	}
	return op
}

// BuildOpenAPI returns the OpenAPI 3.0 description of the v1 API.
func BuildOpenAPI(serverURL string) schema {
	formID := pathParam("id", "string")
	submissionID := pathParam("id", "integer")
	errorSchema := schema{"type": "object", "properties": schema{"error": schema{"type": "string"}}}
	rateHeaders := schema{
		"X-RateLimit-Limit":     schema{"schema": schema{"type": "integer"}},
		"X-RateLimit-Remaining": schema{"schema": schema{"type": "integer"}},
		"X-RateLimit-Reset":     schema{"schema": schema{"type": "integer"}, "description": "Unix seconds"},
	}

	formProps := schema{
		"id":                         schema{"type": "string"},
		"title":                      schema{"type": "string"},
		"description":                schema{"type": "string"},
		"return_url":                 schema{"type": "string"},
		"keys":                       schema{"type": "array", "items": schema{"type": "string"}},
		"enable_submissions":         schema{"type": "boolean"},
		"enable_email_notifications": schema{"type": "boolean"},
		"default_submission_email":   schema{"type": "string"},
		"submission_count":           schema{"type": "integer"},
		"created_at":                 schema{"type": "string", "format": "date-time"},
		"updated_at":                 schema{"type": "string", "format": "date-time"},
	}
	formInput := schema{
		"type": "object",
		"properties": schema{
			"title":                      schema{"type": "string", "minLength": 1, "maxLength": 200},
			"description":                schema{"type": "string", "maxLength": 2000},
			"return_url":                 schema{"type": "string", "format": "uri"},
			"enable_submissions":         schema{"type": "boolean"},
			"enable_email_notifications": schema{"type": "boolean"},
			"default_submission_email":   schema{"type": "string", "format": "email"},
		},
	}
	createInput := schema{"allOf": []schema{formInput, {"required": []string{"title"}}}}

	paths := schema{
		"/me": schema{"get": operation("Current user and API key", nil, nil, response("Current user", ref("Me")))},
		"/forms": schema{
			"get": operation("List forms", []schema{queryParam("q", schema{"type": "string"})}, nil,
				response("Forms", schema{"type": "object", "properties": schema{"forms": schema{"type": "array", "items": ref("Form")}}})),
			"post": operation("Create a form", nil, jsonBody(createInput), response("Created form", ref("Form"))),
		},
		"/forms/{id}": schema{
			"get":    operation("Get a form", []schema{formID}, nil, response("Form", ref("Form"))),
			"patch":  operation("Update a form", []schema{formID}, jsonBody(formInput), response("Updated form", ref("Form"))),
			"delete": operation("Delete a form and its submissions", []schema{formID}, nil, response("Deleted", nil)),
		},
		"/forms/{id}/submissions": schema{
			"get": operation("List submissions", []schema{
				formID,
				queryParam("page", schema{"type": "integer", "minimum": 1}),
				queryParam("limit", schema{"type": "integer", "minimum": 1, "maximum": 100}),
				queryParam("spam", schema{"type": "boolean"}),
			}, nil, response("Submission page", ref("SubmissionPage"))),
		},
		"/forms/{id}/submissions/export": schema{
			"get": operation("Export submissions", []schema{
				formID,
				queryParam("format", schema{"type": "string", "enum": []string{"csv", "json"}}),
				queryParam("spam", schema{"type": "boolean"}),
			}, nil, schema{
				"description": "Export file",
				"content": schema{
					"text/csv":         schema{"schema": schema{"type": "string"}},
					"application/json": schema{"schema": schema{"type": "array", "items": schema{"type": "object"}}},
				},
			}),
		},
		"/submissions/{id}": schema{
			"get": operation("Get a submission", []schema{submissionID}, nil, response("Submission", ref("Submission"))),
			"patch": operation("Mark a submission as spam or not spam", []schema{submissionID}, jsonBody(schema{
				"type":       "object",
				"required":   []string{"is_spam"},
				"properties": schema{"is_spam": schema{"type": "boolean"}},
			}), response("Updated submission", ref("Submission"))),
			"delete": operation("Delete a submission", []schema{submissionID}, nil, response("Deleted", nil)),
		},
	}

	return schema{
		"openapi": "3.0.3",
		"info": schema{
			"title":   "Formbase API",
			"version": "1.0.0",
		},
		"servers":  []schema{{"url": strings.TrimRight(serverURL, "/") + "/api/v1"}},
		"security": []schema{{"bearerAuth": []string{}}},
		"paths":    paths,
		"components": schema{
			"securitySchemes": schema{
				"bearerAuth": schema{"type": "http", "scheme": "bearer"},
			},
			"schemas": schema{
				"Error": errorSchema,
				"Form":  schema{"type": "object", "properties": formProps},
				"Submission": schema{"type": "object", "properties": schema{
					"id":              schema{"type": "integer"},
					"form_id":         schema{"type": "string"},
					"data":            schema{"type": "object", "additionalProperties": true},
					"is_spam":         schema{"type": "boolean"},
					"spam_reason":     schema{"type": "string"},
					"manual_override": schema{"type": "boolean"},
					"created_at":      schema{"type": "string", "format": "date-time"},
				}},
				"SubmissionPage": schema{"type": "object", "properties": schema{
					"items":       schema{"type": "array", "items": ref("Submission")},
					"total":       schema{"type": "integer"},
					"page":        schema{"type": "integer"},
					"limit":       schema{"type": "integer"},
					"total_pages": schema{"type": "integer"},
				}},
				"Me": schema{"type": "object", "properties": schema{
					"id":             schema{"type": "integer"},
					"email":          schema{"type": "string"},
					"name":           schema{"type": "string"},
					"email_verified": schema{"type": "boolean"},
				}},
			},
			"responses": schema{
				"UnauthorizedResponse": response("Invalid or missing API key", ref("Error")),
				"NotFoundResponse":     response("Not found", ref("Error")),
				"ValidationResponse":   response("Validation failed", ref("Error")),
				"RateLimitedResponse": schema{
					"description": "Rate limit exceeded",
					"headers":     mergeHeaders(rateHeaders, schema{"Retry-After": schema{"schema": schema{"type": "integer"}}}),
					"content":     schema{"application/json": schema{"schema": ref("Error")}},
				},
			},
		},
	}
}

func mergeHeaders(a, b schema) schema {
	out := make(schema, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// OpenAPIHandler serves the document built once per process.
func OpenAPIHandler(serverURL string) gin.HandlerFunc {
	var (
		once sync.Once
		doc  schema
	)
	return func(c *gin.Context) {
		once.Do(func() { doc = BuildOpenAPI(serverURL) })
		c.JSON(http.StatusOK, doc)
	}
}
