package logger

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupWriterJSONLevel(t *testing.T) {
	var buf bytes.Buffer
	l := SetupWriter(&buf, "warn", "json")
	l.Info("hidden")
	l.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Same(t, l, L())
}

func TestSessionLogger(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "text")
	Session("abc").Debug("pipeline_run")
	assert.Contains(t, buf.String(), "session=abc")
}

func TestAccessMiddlewareRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	l := SetupWriter(&buf, "debug", "text")
	h := AccessMiddleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("tea"))
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/palettes", nil)
	req.Header.Set(SessionHeader, "s1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := buf.String()
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "bytes=3")
	assert.Contains(t, out, "session=s1")
	assert.Contains(t, out, "path=/api/palettes")
}
