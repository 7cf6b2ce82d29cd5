package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/oriys/dnsflow/internal/config"
)

// WrapHandler 把 HTTP 处理器包进 otelhttp 的服务端追踪。
// 遥测关闭时原样返回。
func WrapHandler(h http.Handler, cfg config.TelemetryConfig) http.Handler {
	if !cfg.Enabled {
		return h
	}
	return otelhttp.NewHandler(h, cfg.ServiceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}
