package manifest

import (
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

// AgentIDHeader names the acting worker on REST calls.
const AgentIDHeader = "X-Agent-ID"

// Path is the REST endpoint of an operation.
func Path(role, operation string) string {
	return fmt.Sprintf("/api/agents/%s/%s", role, operation)
}

func errorSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("code", openapi3.NewStringSchema()).
		WithProperty("message", openapi3.NewStringSchema()).
		WithProperty("details", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithRequired([]string{"code", "message"})
}

func resultSchema(data *openapi3.Schema) *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("code", openapi3.NewStringSchema().WithEnum("OK")).
		WithProperty("message", openapi3.NewStringSchema()).
		WithProperty("data", data).
		WithRequired([]string{"code", "message"})
}

// OpenAPI renders the manifest as an OpenAPI 3 document with one POST
// operation per role operation.
func (m *Manifest) OpenAPI() *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       m.Name,
			Version:     m.Version,
			Description: "Role operations of the task coordination engine.",
		},
		Paths: openapi3.NewPaths(),
	}
	errResp := openapi3.NewResponse().
		WithDescription("Error with a gRPC style code").
		WithJSONSchema(errorSchema())

	for _, r := range m.Roles {
		for i := range r.Operations {
			op := &r.Operations[i]
			agentID := openapi3.NewHeaderParameter(AgentIDHeader).
				WithSchema(openapi3.NewStringSchema()).
				WithDescription(fmt.Sprintf("Acting %s; defaults to the first registered %s", r.Role, r.Role))

			responses := openapi3.NewResponses()
			responses.Set("200", &openapi3.ResponseRef{Value: openapi3.NewResponse().
				WithDescription(http.StatusText(http.StatusOK)).
				WithJSONSchema(resultSchema(op.OutputSchema()))})
			responses.Set("default", &openapi3.ResponseRef{Value: errResp})

			doc.Paths.Set(Path(string(r.Role), op.Name), &openapi3.PathItem{
				Post: &openapi3.Operation{
					OperationID: fmt.Sprintf("%s_%s", r.Role, op.Name),
					Summary:     op.Description,
					Tags:        []string{string(r.Role)},
					Parameters:  openapi3.Parameters{{Value: agentID}},
					RequestBody: &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
						WithRequired(true).
						WithJSONSchema(op.InputSchema())},
					Responses: responses,
				},
			})
		}
	}
	return doc
}
