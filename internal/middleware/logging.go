package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// RoundTripperFunc adapts a function to http.RoundTripper
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls f(r)
func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// Logging creates client middleware that logs every outgoing HTTP request.
// Query strings are left out; they can carry amounts.
func Logging(logger *slog.Logger) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		if next == nil {
			next = http.DefaultTransport
		}
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()

			resp, err := next.RoundTrip(r)

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("http request failed", append(attrs, slog.String("error", err.Error()))...)
				return nil, err
			}

			logger.Debug("http request", append(attrs,
				slog.Int("status", resp.StatusCode),
				slog.Int64("size", resp.ContentLength),
			)...)
			return resp, nil
		})
	}
}
