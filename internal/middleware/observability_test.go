package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tgcord/internal/metrics"
	"tgcord/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferedLogger() (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.DebugLevel)
	return logger, &buf
}

func TestObservability_AttachesRequestInfo(t *testing.T) {
	logger, buf := bufferedLogger()

	router := mux.NewRouter()
	router.Use(Observability(logger))
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		info := tracing.GetRequestInfo(r.Context())
		assert.NotEmpty(t, info.RequestID)
		assert.NotEmpty(t, info.TraceID)
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	before := metrics.GetRegistry().CounterValue("http_requests_total", map[string]string{"method": "GET", "endpoint": "/health"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	after := metrics.GetRegistry().CounterValue("http_requests_total", map[string]string{"method": "GET", "endpoint": "/health"})
	assert.Equal(t, before+1, after)
	assert.Contains(t, buf.String(), "HTTP request completed")
	assert.Contains(t, buf.String(), "192.168.1.100")
}

func TestObservability_ServerErrorLoggedAtError(t *testing.T) {
	logger, buf := bufferedLogger()

	router := mux.NewRouter()
	router.Use(Observability(logger))
	router.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"status_code":500`)
}

func TestWebhook_CountsRejections(t *testing.T) {
	logger, buf := bufferedLogger()
	labels := map[string]string{"source": "telegram", "status_code": "401"}
	before := metrics.GetRegistry().CounterValue("webhook_errors_total", labels)

	handler := Webhook(logger, "telegram")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader("{}")))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, before+1, metrics.GetRegistry().CounterValue("webhook_errors_total", labels))
	assert.Contains(t, buf.String(), "Webhook request rejected")
}

func TestRouteTemplate_Unmatched(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	assert.Equal(t, "unmatched", routeTemplate(req))
}

func TestDetailedLogging_MasksSecretHeader(t *testing.T) {
	logger, buf := bufferedLogger()
	config := DefaultDetailedLoggingConfig()
	config.LogBody = true

	var seenBody string
	handler := DetailedLogging(logger, config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := new(bytes.Buffer)
		_, _ = b.ReadFrom(r.Body)
		seenBody = b.String()
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(`{"update_id":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "super-secret")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, `{"update_id":1}`, seenBody)
	assert.NotContains(t, buf.String(), "super-secret")
	assert.Contains(t, buf.String(), maskedValue)
	assert.Contains(t, buf.String(), "update_id")
}

func TestDetailedLogging_SkipsHealth(t *testing.T) {
	logger, buf := bufferedLogger()

	handler := DetailedLogging(logger, DefaultDetailedLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Empty(t, buf.String())
}
