//go:build !dev

package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*
var templateFS embed.FS

//go:embed static/openapi.yaml
var staticFS embed.FS

// IsEmbedded reports whether pages are served from the binary
func IsEmbedded() bool {
	return true
}

// LoadTemplates parses the embedded templates
func LoadTemplates(r *gin.Engine, funcMap template.FuncMap) error {
	tmpl := template.New("").Funcs(funcMap)

	err := fs.WalkDir(templateFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, err := templateFS.ReadFile(path)
		if err != nil {
			return err
		}
		_, err = tmpl.New(d.Name()).Parse(string(content))
		return err
	})
	if err != nil {
		return err
	}

	r.SetHTMLTemplate(tmpl)
	return nil
}

// SetupStatic serves the OpenAPI document
func SetupStatic(r *gin.Engine) error {
	staticSubFS, err := fs.Sub(staticFS, "static")
	if err != nil {
		return err
	}
	r.StaticFileFS("/docs/openapi.yaml", "openapi.yaml", http.FS(staticSubFS))
	return nil
}
