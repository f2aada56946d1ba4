// Package server wires the site together: static pages, the streaming chat
// proxy and the form relay endpoints, all behind one chi router.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/msouli/folio/pkg/assets"
	"github.com/msouli/folio/pkg/cache"
	"github.com/msouli/folio/pkg/config"
	"github.com/msouli/folio/pkg/logutil"
	"github.com/msouli/folio/pkg/quota"
	"github.com/msouli/folio/pkg/relay"
	"github.com/msouli/folio/pkg/upstream"
)

type Server struct {
	cfg      *config.Config
	ledger   *quota.Ledger
	chat     *upstream.Client // nil when no provider key is configured
	mailer   *relay.EmailSender
	subs     relay.SubscriberStore
	pages    *template.Template
	projects []assets.Project

	// uaWarned throttles abuse-signal log lines per identity so a scripted
	// client cannot flood the log.
	uaWarned *cache.TTLMap[string, struct{}]

	httpServer *http.Server
	log        *log.Logger
}

func New(cfg *config.Config, ledger *quota.Ledger, chat *upstream.Client, mailer *relay.EmailSender, subs relay.SubscriberStore) (*Server, error) {
	pages, err := assets.ParseTemplates()
	if err != nil {
		return nil, err
	}
	projects, err := assets.LoadProjects()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		ledger:   ledger,
		chat:     chat,
		mailer:   mailer,
		subs:     subs,
		pages:    pages,
		projects: projects,
		uaWarned: cache.NewTTLMap[string, struct{}](),
		log:      logutil.Component("server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	// middleware.RealIP is deliberately absent: the identity resolver owns
	// forwarded-header interpretation and must see the raw peer address.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/", s.handleHome)
	r.Get("/about", s.handlePage("about.html"))
	r.Get("/projects", s.handleProjects)
	r.Get("/project/{slug}", s.handleProject)
	r.Get("/contact", s.handlePage("contact.html"))
	r.Get("/chat", s.handleChatPage)
	r.Get("/static/*", s.handleStatic)

	r.Route("/api", func(api chi.Router) {
		api.Post("/chat", s.handleChat)
		api.Options("/chat", s.handlePreflight)
		api.Post("/contact", s.handleContact)
		api.Options("/contact", s.handlePreflight)
		api.Post("/newsletter", s.handleNewsletter)
		api.Options("/newsletter", s.handlePreflight)
	})

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      0, // streaming responses run longer than any sane fixed limit
		IdleTimeout:       120 * time.Second,
	}

	return s, nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("listening", "addr", s.cfg.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(shutdownCtx)
	return nil
}
