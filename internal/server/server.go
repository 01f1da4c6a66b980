package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Bot is the part of the dispatcher the HTTP surface drives.
type Bot interface {
	// Go dispatches update on its own goroutine and returns immediately.
	Go(ctx context.Context, update tgbotapi.Update)
	RegisterWebhook(url string) error
}

type Config struct {
	Addr        string
	WebhookPath string
	// WebhookURL is registered by GET /setwebhook. Empty disables the route's
	// effect and the webhook endpoint is still served.
	WebhookURL string
	// WebhookSecret must match the X-Telegram-Bot-Api-Secret-Token header of
	// every webhook delivery.
	WebhookSecret string
}

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

type Server struct {
	cfg        Config
	bot        Bot
	router     chi.Router
	httpServer *http.Server
}

func New(cfg Config, bot Bot) *Server {
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/webhook"
	}
	s := &Server{cfg: cfg, bot: bot}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Get("/setwebhook", s.setWebhook)
	r.With(s.requireSecret).Post(s.cfg.WebhookPath, s.webhook)
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) setWebhook(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.WebhookURL == "" {
		http.Error(w, "webhook url not configured", http.StatusBadRequest)
		return
	}
	if err := s.bot.RegisterWebhook(s.cfg.WebhookURL); err != nil {
		log.Error().Err(err).Msg("set webhook failed")
		http.Error(w, "webhook setup failed", http.StatusBadGateway)
		return
	}
	_, _ = w.Write([]byte("webhook set"))
}

// webhook acknowledges Telegram immediately. The update outlives the request,
// so it is dispatched with a detached context.
func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.Warn().Err(err).Msg("malformed update")
		http.Error(w, "malformed update", http.StatusBadRequest)
		return
	}
	s.bot.Go(context.WithoutCancel(r.Context()), update)
	w.WriteHeader(http.StatusOK)
}

// requireSecret rejects deliveries that do not carry the registered secret.
// An unset secret rejects everything.
func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(secretHeader)
		if s.cfg.WebhookSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.WebhookSecret)) != 1 {
			log.Warn().Str("remote", r.RemoteAddr).Msg("webhook delivery without valid secret")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info().Str("addr", s.cfg.Addr).Str("webhook_path", s.cfg.WebhookPath).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}
