package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"signin-relay/internal/metrics"
)

// MetricsMiddleware records inbound request count, latency and in-flight
// gauge, labelled with the relay operation the request was dispatched to.
// Requests refused by the rate limiter also count as rejections.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			start := time.Now()
			err := next(c)
			elapsed := time.Since(start)
			m.RequestsInFlight.Dec()

			code := statusOf(c, err)
			if code == http.StatusTooManyRequests {
				m.Reject(metrics.ReasonRateLimited)
			}

			req := c.Request()
			labels := []string{
				metrics.NormalizeMethod(req.Method),
				strconv.Itoa(code),
				metrics.NormalizePath(req.URL.Path),
				metrics.Operation(req.Method, req.URL.Path, c.QueryParam("action")),
			}
			m.RequestsTotal.WithLabelValues(labels...).Inc()
			m.RequestDuration.WithLabelValues(labels...).Observe(elapsed.Seconds())

			return err
		}
	}
}

// statusOf is the status the client sees. An *echo.HTTPError is written by
// the error handler after the middleware chain returns.
func statusOf(c echo.Context, err error) int {
	var he *echo.HTTPError
	if !c.Response().Committed && errors.As(err, &he) {
		return he.Code
	}
	return c.Response().Status
}
