package server

import (
	"mime"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/msouli/folio/pkg/assets"
)

// pageData feeds every page template; unused fields stay zero.
type pageData struct {
	Projects         []assets.Project
	Project          *assets.Project
	MaxMessageLength int
}

func (s *Server) renderPage(w http.ResponseWriter, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("render page failed", "page", name, "err", err)
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.renderPage(w, "home.html", pageData{Projects: s.projects})
}

func (s *Server) handlePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.renderPage(w, name, pageData{})
	}
}

func (s *Server) handleProjects(w http.ResponseWriter, _ *http.Request) {
	s.renderPage(w, "projects.html", pageData{Projects: s.projects})
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	for i := range s.projects {
		if s.projects[i].Slug == slug {
			s.renderPage(w, "project.html", pageData{Project: &s.projects[i]})
			return
		}
	}
	http.NotFound(w, r)
}

func (s *Server) handleChatPage(w http.ResponseWriter, _ *http.Request) {
	s.renderPage(w, "chat.html", pageData{MaxMessageLength: s.cfg.Limits.MaxMessageLength})
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	b, err := assets.LoadStaticAsset(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	ctype := mime.TypeByExtension(path.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(b)
}
