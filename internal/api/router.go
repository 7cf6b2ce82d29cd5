package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// apiVersions 是注册的 API 版本。
// v1 和 v2 共享同一套处理器；新增版本在这里登记即可挂载。
var apiVersions = []string{"v1", "v2"}

// NewRouter 创建 HTTP 路由。
// authMiddleware 为 nil 时 DNS 路由不做认证。
func NewRouter(h *Handler, log *logrus.Logger, authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	// 探针和指标不走认证
	r.Get("/health", h.Health)
	r.Get("/health/live", h.Health)
	r.Get("/health/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	for _, version := range apiVersions {
		r.Route("/api/"+version, func(vr chi.Router) {
			if authMiddleware != nil {
				vr.Use(authMiddleware)
			}
			vr.Route("/dns", mountDNSRoutes(h))
		})
	}

	return r
}

// mountDNSRoutes 挂载 DNS 请求路由。
// 静态路径（create、records、update_status）必须先于参数路径 /{id} 注册。
func mountDNSRoutes(h *Handler) func(chi.Router) {
	return func(r chi.Router) {
		r.Post("/create", h.CreateRequest)
		r.Get("/records", h.ListRecords)
		r.Post("/update_status/{id}", h.UpdateRequestStatus)
		r.Get("/{id}", h.GetRequestStatus)
	}
}

// requestLogger 返回结构化访问日志中间件。
func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
				"remote":     r.RemoteAddr,
			}).Info("HTTP request")
		})
	}
}

// corsMiddleware 处理跨域请求头和预检请求。
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
