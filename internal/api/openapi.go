package api

import "fmt"

// buildOpenAPIDoc returns an OpenAPI 3.1 document with one push path per
// bound queue key, plus the fixed inspection routes.
func buildOpenAPIDoc(keys []string) map[string]any {
	paths := map[string]any{
		"/queues": map[string]any{
			"get": operation("listQueues", "List live dispatchers", "200", "Queue stats"),
		},
		"/queues/{owner}/{queue}": map[string]any{
			"get": withPathParams(operation("getQueue", "Dispatcher stats", "200", "Queue stats", "404")),
		},
		"/queues/{owner}/{queue}/clear": map[string]any{
			"post": withPathParams(operation("clearQueue", "Discard buffered tasks", "200", "Number cleared", "404")),
		},
		"/queues/{owner}/{queue}/history": map[string]any{
			"get": withPathParams(operation("queueHistory", "Settled task history", "200", "History entries")),
		},
		"/events": map[string]any{
			"get": withQueryParams(operation("events", "Server-sent task events", "200", "text/event-stream"),
				"owner", "queue", "type"),
		},
	}

	for _, key := range keys {
		op := operation("push__"+key, fmt.Sprintf("Push a task onto %s", key), "202", "Task accepted", "400", "404")
		op["tags"] = []string{key}
		op["parameters"] = []any{pathParam("owner")}
		op["requestBody"] = map[string]any{
			"required": false,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"args": map[string]any{"type": "array"},
						},
					},
				},
			},
		}
		paths[fmt.Sprintf("/queues/{owner}/%s/tasks", key)] = map[string]any{"post": op}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "Lanes",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func operation(id, summary, okCode, okDesc string, errCodes ...string) map[string]any {
	responses := map[string]any{
		okCode: map[string]any{"description": okDesc},
		"401":  map[string]any{"description": "Missing or invalid API key"},
	}
	for _, code := range errCodes {
		responses[code] = map[string]any{"description": "Error"}
	}
	return map[string]any{
		"operationId": id,
		"summary":     summary,
		"responses":   responses,
		"security":    []any{map[string]any{"BearerAuth": []string{}}},
	}
}

func withPathParams(op map[string]any) map[string]any {
	op["parameters"] = []any{pathParam("owner"), pathParam("queue")}
	return op
}

func withQueryParams(op map[string]any, names ...string) map[string]any {
	params := make([]any, 0, len(names))
	for _, name := range names {
		params = append(params, map[string]any{
			"name":   name,
			"in":     "query",
			"schema": map[string]any{"type": "string"},
		})
	}
	op["parameters"] = params
	return op
}

func pathParam(name string) map[string]any {
	return map[string]any{
		"name":     name,
		"in":       "path",
		"required": true,
		"schema":   map[string]any{"type": "string"},
	}
}
