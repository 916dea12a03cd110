// Package docs serves the embedded OpenAPI document and a browsable
// reference page.
package docs

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var openAPISpec []byte

var (
	loadOnce sync.Once
	loaded   *openapi3.T
	loadErr  error
)

// GetSpecBytes returns the embedded YAML document.
func GetSpecBytes() []byte {
	return openAPISpec
}

// Load parses and validates the embedded document once.
func Load() (*openapi3.T, error) {
	loadOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData(openAPISpec)
		if err != nil {
			loadErr = fmt.Errorf("parse openapi.yaml: %w", err)
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			loadErr = fmt.Errorf("validate openapi.yaml: %w", err)
			return
		}
		loaded = doc
	})
	return loaded, loadErr
}

var specETag = func() string {
	sum := sha256.Sum256(openAPISpec)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}()

// OpenAPIHandler serves the document as YAML, or as JSON when the client
// asks for it with ?format=json or an application/json Accept header.
func OpenAPIHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", specETag)
		w.Header().Set("Cache-Control", "public, max-age=300")
		if r.Header.Get("If-None-Match") == specETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		if !wantsJSON(r) {
			w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
			_, _ = w.Write(openAPISpec)
			return
		}

		doc, err := Load()
		if err != nil {
			http.Error(w, "openapi document unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(doc)
	})
}

func wantsJSON(r *http.Request) bool {
	if r.URL.Query().Get("format") == "json" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

var scalarPage = template.Must(template.New("scalar").Parse(`<!doctype html>
<html>
  <head>
    <title>{{.Title}}</title>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <style>body { margin: 0; }</style>
  </head>
  <body>
    <script id="api-reference" data-url="{{.SpecURL}}"></script>
    <script src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
  </body>
</html>
`))

// ScalarDocsHandler renders the Scalar API reference pointed at specURL.
// The page title comes from the document's info block.
func ScalarDocsHandler(specURL string) http.Handler {
	title := "WeldFlow API Reference"
	if doc, err := Load(); err == nil && doc.Info != nil && doc.Info.Title != "" {
		title = doc.Info.Title + " Reference"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = scalarPage.Execute(w, struct{ Title, SpecURL string }{title, specURL})
	})
}
