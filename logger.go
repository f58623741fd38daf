package fetchkit

import (
	"log/slog"
	"time"
)

// loggerMiddleware is the first item in the chain (spec §4.1): it logs
// one structured line per request/response pair, the way the teacher's
// proxy resolver logs failures via slog key-value pairs.
func loggerMiddleware(log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}
	return func(req *Request, next Next) (*Response, error) {
		start := time.Now()
		resp, err := next(req)
		elapsed := time.Since(start)
		if err != nil {
			log.Error("fetchkit request failed",
				"method", req.Method, "url", req.URL, "attempt", req.Attempt,
				"elapsed", elapsed, "error", err)
			return resp, err
		}
		log.Info("fetchkit request",
			"method", req.Method, "url", req.URL, "status", resp.StatusCode,
			"attempt", req.Attempt, "elapsed", elapsed)
		return resp, nil
	}
}
