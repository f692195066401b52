package handlers

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
	"time"

	"posemind/internal/middleware"
)

//go:embed openapi.json
var openAPIDocument []byte

// builtAt stamps the embedded document for conditional GETs.
var builtAt = time.Now()

var docsTitles = map[string]string{
	middleware.LocaleZH: "PoseMind 姿势推荐接口文档",
	middleware.LocaleEN: "PoseMind pose API reference",
}

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
  <head>
    <meta charset="utf-8" />
    <title>{{.Title}}</title>
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <style>body { margin: 0; } redoc { display: block; height: 100vh; }</style>
  </head>
  <body>
    <redoc spec-url="{{.DocumentURL}}" hide-download-button></redoc>
    <script src="https://cdn.jsdelivr.net/npm/redoc@2.2.0/bundles/redoc.standalone.js"></script>
  </body>
</html>`))

// OpenAPIJSON serves the embedded API description.
func (a *App) OpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	http.ServeContent(w, r, "openapi.json", builtAt, bytes.NewReader(openAPIDocument))
}

// OpenAPIDocs renders the ReDoc page titled in the request locale.
func (a *App) OpenAPIDocs(w http.ResponseWriter, r *http.Request) {
	locale := middleware.LocaleFromContext(r.Context())
	title, ok := docsTitles[locale]
	if !ok {
		locale, title = middleware.LocaleZH, docsTitles[middleware.LocaleZH]
	}
	var buf bytes.Buffer
	if err := docsPage.Execute(&buf, struct{ Lang, Title, DocumentURL string }{locale, title, "/v1/openapi.json"}); err != nil {
		a.log(r).Error().Err(err).Msg("render docs page")
		a.error(w, r, http.StatusInternalServerError, msgGenerateFailed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
