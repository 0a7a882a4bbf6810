package api

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml web
var webFS embed.FS

// loadOpenAPI parses and validates the embedded document and returns it as JSON.
func loadOpenAPI(ctx context.Context) ([]byte, error) {
	data, err := webFS.ReadFile("openapi.yaml")
	if err != nil {
		return nil, err
	}
	doc, err := openapi3.NewLoader().LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("api: load openapi: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("api: invalid openapi: %w", err)
	}
	return json.Marshal(doc)
}
