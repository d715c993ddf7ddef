package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"v4vfm/config"
	"v4vfm/core/value"
	"v4vfm/logger"
)

// NewRouter 注册所有路由
func NewRouter(h *APIHandler) *mux.Router {
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	router.HandleFunc("/healthz", h.HealthHandler).Methods(http.MethodGet, http.MethodOptions)

	// 远程条目解析
	router.HandleFunc("/api/remote-items/resolve", h.ResolveItemHandler).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/api/remote-items/resolve", h.ResolveBatchHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/resolve", h.ResolvePlaylistHandler).Methods(http.MethodGet, http.MethodOptions)

	// V4V 分账与支付
	router.HandleFunc("/api/value/splits", h.SplitsHandler).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/value/payments", h.PaymentsHandler).Methods(http.MethodPost, http.MethodOptions)

	return router
}

// Start initializes and starts the HTTP server, and blocks until SIGINT/SIGTERM.
func Start(cfg *config.Config) error {
	deps, err := BuildDependencies(cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	var catalog value.CatalogSource
	if deps.Catalog != nil {
		catalog = deps.Catalog
	}
	handler := NewAPIHandler(deps.Resolver, deps.Coordinator, deps.Playlists, deps.Payments, catalog, deps.Batch)

	// 设置服务器超时，歌单解析可能持续较长时间
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      NewRouter(handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[Start] 服务器启动", logger.String("addr", server.Addr), logger.String("cache", cfg.Cache.Backend))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-stop:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	logger.Info("[Start] 正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info("[Start] 服务器已停止")
	return nil
}
