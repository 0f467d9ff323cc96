package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/frahmantamala/pagepay/pkg/logger"
)

const (
	filtered = "[FILTERED]"
	// bodies beyond this are logged by size only
	maxLoggedBody = 4 << 10
)

// sensitiveSubstrings mask any field whose lower-cased name contains them.
var sensitiveSubstrings = []string{
	"password",
	"token",
	"authorization",
	"secret",
	"private_key",
	"api_key",
	"session",
	"credential",
	"cookie",
}

// sensitiveNames mask only exact field names. Gateway signatures are
// credentials; sign_type is not.
var sensitiveNames = map[string]struct{}{
	"sign": {},
}

func isSensitive(name string) bool {
	lower := strings.ToLower(name)
	if _, ok := sensitiveNames[lower]; ok {
		return true
	}
	for _, s := range sensitiveSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// LoggingMiddleware logs each request and its response with credentials
// masked. The gateway's form and query callbacks get the same treatment as
// JSON bodies. Lines go through the request's context logger so they carry
// the trace id.
func LoggingMiddleware(base *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lg := logger.FromOr(r.Context(), base)

			logRequest(lg, r)

			ww := &responseWriter{
				ResponseWriter: w,
				body:           &bytes.Buffer{},
			}

			next.ServeHTTP(ww, r)

			logResponse(r.Context(), lg, ww, time.Since(start))
		})
	}
}

// responseWriter captures the status and the first maxLoggedBody bytes.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
	body       *bytes.Buffer
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - rw.body.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		rw.body.Write(b[:room])
	}
	rw.size += len(b)
	return rw.ResponseWriter.Write(b)
}

func logRequest(lg *slog.Logger, r *http.Request) {
	var bodyBytes []byte
	if r.Body != nil {
		bodyBytes, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}

	lg.Info("incoming request",
		"method", r.Method,
		"path", r.URL.Path,
		"query", filterValues(r.URL.Query()),
		"remote_addr", r.RemoteAddr,
		"user_agent", r.UserAgent(),
		"headers", filterHeaders(r.Header),
		"body", filterBody(r.Header.Get("Content-Type"), bodyBytes, len(bodyBytes)),
	)
}

func logResponse(ctx context.Context, lg *slog.Logger, rw *responseWriter, duration time.Duration) {
	statusCode := rw.statusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}

	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	lg.Log(ctx, level, "response",
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"response_size", rw.size,
		"body", filterBody(rw.Header().Get("Content-Type"), rw.body.Bytes(), rw.size),
	)
}

func filterHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if isSensitive(name) {
			out[name] = filtered
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func filterValues(values url.Values) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for name, v := range values {
		if isSensitive(name) {
			out[name] = filtered
			continue
		}
		out[name] = strings.Join(v, ",")
	}
	return out
}

// filterBody renders JSON and form bodies with sensitive fields masked.
// Other content types are summarised, never echoed.
func filterBody(contentType string, body []byte, size int) any {
	if size == 0 {
		return ""
	}
	if size > maxLoggedBody {
		return "[TRUNCATED]"
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return "[UNPARSEABLE FORM]"
		}
		return filterValues(values)
	case "text/plain":
		return string(body)
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return "[NON-JSON BODY]"
	}
	raw, err := json.Marshal(filterJSON(data))
	if err != nil {
		return "[UNPRINTABLE BODY]"
	}
	return string(raw)
}

func filterJSON(data any) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			if isSensitive(key) {
				out[key] = filtered
				continue
			}
			out[key] = filterJSON(value)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = filterJSON(item)
		}
		return out
	default:
		return v
	}
}
