// Package api holds the OpenAPI document for the upload service.
package api

import _ "embed"

// OpenAPIYAML is the service's OpenAPI 3 document
//
//go:embed openapi.yaml
var OpenAPIYAML []byte
