//go:build dev

package web

import (
	"html/template"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

// IsEmbedded reports whether pages are served from the binary
func IsEmbedded() bool {
	return false
}

// getBaseDir CURRENCY_API_BASE_DIR or the binary's directory
func getBaseDir() string {
	if dir := os.Getenv("CURRENCY_API_BASE_DIR"); dir != "" {
		return dir
	}
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// LoadTemplates reads templates from disk so edits show without a rebuild
func LoadTemplates(r *gin.Engine, funcMap template.FuncMap) error {
	r.SetFuncMap(funcMap)
	r.LoadHTMLGlob(filepath.Join(getBaseDir(), "web", "templates", "*"))
	return nil
}

// SetupStatic serves the OpenAPI document from disk
func SetupStatic(r *gin.Engine) error {
	r.StaticFile("/docs/openapi.yaml", filepath.Join(getBaseDir(), "web", "static", "openapi.yaml"))
	return nil
}
