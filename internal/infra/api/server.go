package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"opsvision/internal/config"
	"opsvision/internal/usecase"
)

// Server exposes analyses and chat over HTTP.
type Server struct {
	cfg     config.APIConfig
	videoUC usecase.VideoUseCase
	chatUC  usecase.ChatUseCase
	manuals usecase.ManualUseCase
	auth    *AuthManager
	limiter Limiter
	log     *zerolog.Logger
}

type ServerOption func(*Server)

// WithManuals mounts the manual search routes.
func WithManuals(m usecase.ManualUseCase) ServerOption {
	return func(s *Server) { s.manuals = m }
}

func NewServer(
	cfg config.APIConfig,
	videoUC usecase.VideoUseCase,
	chatUC usecase.ChatUseCase,
	limiter Limiter,
	logger *zerolog.Logger,
	opts ...ServerOption,
) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "HTTPServer").Logger()
	s := &Server{
		cfg:     cfg,
		videoUC: videoUC,
		chatUC:  chatUC,
		auth:    NewAuthManager(cfg.JWTSecret),
		limiter: limiter,
		log:     &l,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the full handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID(), Recover(s.log), RequestLog(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.auth.Require(), RateLimit(s.limiter, "v1", s.cfg.RateLimit, s.log))

		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", s.createAnalysis)
			r.Get("/", s.listAnalyses)
			r.Get("/{id}", s.getAnalysis)
			r.With(Timeout(5*time.Minute)).Post("/{id}/questions", s.followUp)
		})
		r.With(Timeout(2*time.Minute)).Post("/chat", s.chat)
		r.Get("/models", s.listModels)
		if s.manuals != nil {
			r.Get("/manuals", s.listManuals)
			r.Get("/manuals/search", s.searchManuals)
		}
	})

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
	})
	return c.Handler(r)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", s.cfg.Port).Bool("auth", s.auth.Enabled()).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
