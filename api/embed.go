// Package api embeds the OpenAPI description used for request validation.
package api

import _ "embed"

//go:embed openapi.yaml
var Spec []byte
