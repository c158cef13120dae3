// Package web renders the account pages.
package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template names.
const (
	TemplateLoading  = "loading.html"
	TemplateLogin    = "login.html"
	TemplateAPIKey   = "api_key.html"
	TemplateWelcome  = "welcome.html"
	TemplatePrivacy  = "privacy.html"
	TemplateTerms    = "terms.html"
	TemplateNotFound = "not_found.html"
)

// Templates parses every page template.
func Templates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}
