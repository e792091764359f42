package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"StockInsight/pkg/logger"
)

// RequestLogging logs HTTP requests.
func RequestLogging(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("uri", req.RequestURI),
				logger.String("remote", c.RealIP()),
				logger.Int("status", status),
				logger.Duration("duration_ms", time.Since(start)),
			}
			if status >= 500 {
				log.Error("http request failed", fields...)
			} else {
				log.Info("http request", fields...)
			}
			return nil
		}
	}
}
