package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"Musync/logger"

	"github.com/gorilla/mux"
)

// Publisher 向队列投递消息
type Publisher interface {
	Publish(ctx context.Context, queue string, payload interface{}) (string, error)
	Len(ctx context.Context, queue string) (int64, error)
}

// Check 健康检查项
type Check func(ctx context.Context) error

// Server 管理端 HTTP 服务：健康检查与手动触发
type Server struct {
	router *mux.Router
	http   *http.Server
	queue  Publisher
	checks map[string]Check
}

// New 创建管理端服务
func New(addr string, queue Publisher, checks map[string]Check) *Server {
	s := &Server{
		router: mux.NewRouter(),
		queue:  queue,
		checks: checks,
	}
	s.routes()

	// 设置服务器超时
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(accessLog)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/queues", s.handleQueueStats).Methods(http.MethodGet)
	s.router.HandleFunc("/api/files/{id}/check", s.handleFileCheck).Methods(http.MethodPost)
	s.router.HandleFunc("/api/playlists/{id}/parse", s.handlePlaylistParse).Methods(http.MethodPost)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down with a 5 second grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("[Server] listening", logger.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("[Server] stopped")
	return nil
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("[Server] request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Duration("took", time.Since(start)))
	})
}
