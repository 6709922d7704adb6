package middleware

import (
	"strconv"
	"time"

	"storefront/internal/infra/metrics"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// アクセスログ（zap）とリクエストメトリクス（prometheus）を1箇所で取る。
// どちらもnilなら素通し。
func RequestLogger(log *zap.Logger, m *metrics.ServerMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			elapsed := time.Since(start)

			//handlerラベルはルートのパス（/orders/:id）を使う
			handler := c.Path()
			if handler == "" {
				handler = c.Request().URL.Path
			}

			if m != nil {
				m.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
				m.LatencyMS.WithLabelValues(handler).Observe(float64(elapsed.Milliseconds()))
			}

			if log != nil {
				log.Info("request",
					zap.String("method", c.Request().Method),
					zap.String("path", c.Request().URL.Path),
					zap.Int("status", status),
					zap.Int64("duration_ms", elapsed.Milliseconds()),
				)
			}

			return nil
		}
	}
}
