// Package swagger serves the relay's OpenAPI document and a ReDoc page for it.
package swagger

import (
	"context"
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Docs routes.
const (
	DocsPath    = "/api-docs"
	OpenAPIPath = "/openapi.yaml"
)

// OpenAPI is the OpenAPI 3 document describing the form endpoints.
//
//go:embed openapi.yaml
var OpenAPI []byte

// redocScript is loaded from the ReDoc CDN; the page needs network access in the browser.
const redocScript = "https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"

// Register mounts DocsPath and OpenAPIPath on r. A nil router panics.
func Register(_ context.Context, r chi.Router) {
	if r == nil {
		panic("swagger: nil router")
	}
	r.Get(DocsPath, serveDocs)
	r.Get(OpenAPIPath, serveOpenAPI)
}

func serveDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(docsPage))
}

func serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(OpenAPI)
}

var docsPage = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Form Relay API Docs</title>
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc id="redoc-container"></redoc>
    <script src="` + redocScript + `"></script>
    <script>Redoc.init('` + OpenAPIPath + `', { suppressWarnings: true }, document.getElementById('redoc-container'));</script>
  </body>
</html>`
