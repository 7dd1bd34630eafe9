package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/docsync/internal/db"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	config *Config
	server *http.Server
	db     *sqlx.DB
	svc    *Services
}

func New(ctx context.Context, config *Config, opts ...ServiceOption) (*Server, error) {
	if err := ensureDir(config.DataDir); err != nil {
		return nil, err
	}

	database, err := db.Open(config.DB.Driver, config.DBPath(), config.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Migrate(ctx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	svc, err := NewServices(config, database, opts...)
	if err != nil {
		database.Close()
		return nil, err
	}

	handler, err := SetupRoutes(svc, &config.HTTP)
	if err != nil {
		database.Close()
		return nil, err
	}

	return &Server{
		config: config,
		db:     database,
		svc:    svc,
		server: &http.Server{
			Addr:              config.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Start serves the API and runs the poller until ctx is done or either fails
func (s *Server) Start(ctx context.Context) error {
	slog.Info("docsync server start", "addr", s.config.HTTP.Addr, "remote", s.config.Remote.Driver, "db", s.config.DB.Driver)
	defer slog.Info("docsync server stop")

	if err := s.svc.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := s.runHttpServer(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		return s.svc.RunPoller(egCtx)
	})

	eg.Go(func() error {
		<-egCtx.Done()
		return s.Stop()
	})

	return eg.Wait()
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.svc.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close db: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Services() *Services {
	return s.svc
}

func (s *Server) runHttpServer() error {
	if s.config.HTTP.TLS() {
		slog.Info("server start tls", "addr", s.config.HTTP.Addr, "cert", s.config.HTTP.CertFile, "key", s.config.HTTP.KeyFile)
		return s.server.ListenAndServeTLS(s.config.HTTP.CertFile, s.config.HTTP.KeyFile)
	}
	slog.Info("server start http", "addr", s.config.HTTP.Addr)
	return s.server.ListenAndServe()
}
