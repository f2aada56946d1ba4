// Package assets embeds the site's templates, static files and project
// data so the binary is self-contained.
package assets

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"path"
	"strings"
)

//go:embed files/templates/*.html files/projects.json files/static/*
var FS embed.FS

// Project is one portfolio entry from the embedded data file.
type Project struct {
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Tech        []string `json:"tech"`
	RepoURL     string   `json:"repo_url,omitempty"`
	LiveURL     string   `json:"live_url,omitempty"`
}

func ParseTemplates() (*template.Template, error) {
	t, err := template.ParseFS(FS, "files/templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse embedded templates: %w", err)
	}
	return t, nil
}

func LoadProjects() ([]Project, error) {
	b, err := FS.ReadFile("files/projects.json")
	if err != nil {
		return nil, fmt.Errorf("read project data: %w", err)
	}
	var projects []Project
	if err := json.Unmarshal(b, &projects); err != nil {
		return nil, fmt.Errorf("decode project data: %w", err)
	}
	return projects, nil
}

func LoadStaticAsset(name string) ([]byte, error) {
	clean := strings.TrimPrefix(path.Clean("/"+name), "/")
	if clean == "" || clean == "." || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("invalid static asset name")
	}
	b, err := FS.ReadFile("files/static/" + clean)
	if err != nil {
		return nil, fmt.Errorf("read static asset: %w", err)
	}
	return b, nil
}
