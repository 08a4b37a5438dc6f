package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recoverer is the top-level error handler. It logs the panic with its
// stack and answers 500. The stack is echoed in the body only when
// exposeStack is set (development).
func Recoverer(logger *slog.Logger, exposeStack bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				stack := string(debug.Stack())
				logger.Error("panic recovered",
					slog.String("request_id", GetRequestID(r.Context())),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Any("panic", rvr),
					slog.String("stack", stack),
				)

				body := errorBody{Message: "Internal server error"}
				if exposeStack {
					body.Stack = stack
				}
				writeError(w, http.StatusInternalServerError, body)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
