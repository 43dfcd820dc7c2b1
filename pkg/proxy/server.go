// Package proxy is the HTTP surface: routing, CORS, auth enforcement, and
// the translation of resolver/adapter outcomes into response statuses.
package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/acme/autocert"

	"github.com/gencohq/genco/pkg/auth"
	"github.com/gencohq/genco/pkg/config"
	"github.com/gencohq/genco/pkg/keyring"
	"github.com/gencohq/genco/pkg/kv"
	"github.com/gencohq/genco/pkg/preset"
	"github.com/gencohq/genco/pkg/provider"
)

type Server struct {
	cfg        *config.Config
	store      kv.Store
	resolver   *keyring.Resolver
	registry   *provider.Registry
	presets    *preset.Store
	httpServer *http.Server
	closeStore func() error
}

func NewServer(cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg}

	switch {
	case cfg.RedisAddr != "":
		redis := kv.NewRedis(cfg.RedisAddr)
		s.store = redis
		s.closeStore = redis.Close
	case cfg.KeyStorePath != "":
		s.store = kv.NewFile(cfg.KeyStorePath)
	}

	s.resolver = &keyring.Resolver{Lookup: cfg.LookupEnv, Store: s.store}
	s.registry = provider.NewRegistry(provider.Options{Timeout: cfg.ProviderTimeout()})
	s.presets = &preset.Store{KV: s.store}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(s.preflight)
	r.Use(s.recoverJSON)

	r.Route("/ai", func(ai chi.Router) {
		ai.Post("/summarize", s.handleCompletion)
		ai.Post("/generate", s.handleCompletion)
		ai.Get("/models", s.handleModels)
		ai.Post("/models", s.handleModels)
		ai.Post("/save-key", s.handleSaveKey)
		ai.Get("/get-key", s.handleGetKey)
		ai.Delete("/delete-key", s.handleDeleteKey)
		ai.Get("/debug", s.handleDebug)
		ai.Get("/keys-check", s.handleKeysCheck)
	})
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/logout", s.handleLogout)
	r.Get("/presets", s.handleListPresets)
	r.Post("/presets", s.handleSavePresets)
	r.Delete("/presets/{key}", s.handleDeletePreset)

	// Unmatched paths answer with the plain banner so health probes and
	// misconfigured frontends get a recognizable response.
	r.NotFound(s.handleRoot)
	r.MethodNotAllowed(s.handleRoot)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Handler exposes the router for httptest-driven tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) gate() auth.Gate {
	return auth.Gate{SigningSecret: s.cfg.SigningSecret(), StaticToken: s.cfg.AdminToken()}
}

func (s *Server) authorized(r *http.Request) bool {
	return s.gate().Verify(auth.BearerToken(r.Header))
}

func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if s.closeStore != nil {
			_ = s.closeStore()
		}
	}()

	cfg := s.cfg
	errCh := make(chan error, 2)

	if cfg.TLS.Enabled {
		mgr := &autocert.Manager{
			Cache:      autocert.DirCache(cfg.TLS.CacheDir),
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.TLS.Domain),
			Email:      cfg.TLS.Email,
		}

		httpsSrv := &http.Server{
			Addr:              ":443",
			Handler:           s.httpServer.Handler,
			ReadHeaderTimeout: s.httpServer.ReadHeaderTimeout,
			ReadTimeout:       s.httpServer.ReadTimeout,
			WriteTimeout:      s.httpServer.WriteTimeout,
			IdleTimeout:       s.httpServer.IdleTimeout,
			TLSConfig:         &tls.Config{GetCertificate: mgr.GetCertificate, MinVersion: tls.VersionTLS12},
		}

		httpChallenge := &http.Server{
			Addr:              ":80",
			Handler:           mgr.HTTPHandler(http.HandlerFunc(redirectHTTPS)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Info("http challenge/redirect listening", "addr", ":80")
			if err := httpChallenge.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http challenge server: %w", err)
			}
		}()
		go func() {
			log.Info("https listening", "addr", ":443", "domain", cfg.TLS.Domain)
			if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("https server: %w", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpChallenge.Shutdown(shutdownCtx)
		_ = httpsSrv.Shutdown(shutdownCtx)
		return firstErr(errCh)
	}

	go func() {
		log.Info("listening", "addr", cfg.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: %w", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(shutdownCtx)
	return firstErr(errCh)
}

func redirectHTTPS(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "https://"+r.Host+r.RequestURI, http.StatusMovedPermanently)
}

func firstErr(errCh chan error) error {
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
