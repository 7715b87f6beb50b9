package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestOpenAPISpecDocumentsEveryRoute(t *testing.T) {
	var doc struct {
		OpenAPI string                               `yaml:"openapi"`
		Paths   map[string]map[string]map[string]any `yaml:"paths"`
	}
	require.NoError(t, yaml.Unmarshal(OpenAPISpec, &doc))
	assert.Equal(t, "3.1.0", doc.OpenAPI)

	routes := map[string]string{
		"/tasks":                   "put",
		"/tasks/claim":             "post",
		"/tasks/complete":          "put",
		"/tasks/metrics/{task_id}": "put",
		"/tasks/status":            "get",
		"/JobStatus":               "get",
		"/DatasetDiscovery":        "get",
		"/echo":                    "get",
		"/health/readiness":        "get",
		"/health":                  "get",
		"/metrics":                 "get",
	}
	for path, method := range routes {
		ops, ok := doc.Paths[path]
		if assert.True(t, ok, "path %s missing", path) {
			assert.Contains(t, ops, method, "%s %s missing", method, path)
		}
	}
	assert.Contains(t, doc.Paths["/tasks"], "get")
}
