package requestid_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clinicnotify/pkg/logger"
	"github.com/dmitrymomot/clinicnotify/pkg/requestid"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	serve := func(t *testing.T, header string) (ctxID, respID string) {
		t.Helper()
		h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctxID = requestid.FromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(requestid.Header, header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		return ctxID, rec.Header().Get(requestid.Header)
	}

	t.Run("generates when missing", func(t *testing.T) {
		t.Parallel()
		ctxID, respID := serve(t, "")
		assert.Equal(t, ctxID, respID)
		_, err := uuid.Parse(ctxID)
		assert.NoError(t, err)
	})

	t.Run("reuses valid header", func(t *testing.T) {
		t.Parallel()
		ctxID, respID := serve(t, "gateway-req_42")
		assert.Equal(t, "gateway-req_42", ctxID)
		assert.Equal(t, "gateway-req_42", respID)
	})

	t.Run("replaces malformed header", func(t *testing.T) {
		t.Parallel()
		for _, bad := range []string{"has spaces", "semi;colon", "<script>", strings.Repeat("a", 129)} {
			ctxID, _ := serve(t, bad)
			assert.NotEqual(t, bad, ctxID)
			_, err := uuid.Parse(ctxID)
			assert.NoError(t, err, bad)
		}
	})
}

func TestResolve(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc-123", requestid.Resolve("abc-123"))
	assert.Equal(t, strings.Repeat("a", 128), requestid.Resolve(strings.Repeat("a", 128)))

	first, second := requestid.Resolve(""), requestid.Resolve("")
	assert.NotEqual(t, first, second)
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	assert.Empty(t, requestid.FromContext(context.Background()))
	//nolint:staticcheck // nil context is part of the contract
	assert.Empty(t, requestid.FromContext(nil))
	assert.Equal(t, "x", requestid.FromContext(requestid.WithContext(context.Background(), "x")))
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(
		logger.WithOutput(&buf),
		logger.WithFormat(logger.FormatJSON),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)

	log.InfoContext(requestid.WithContext(context.Background(), "req-1"), "with id")
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)

	buf.Reset()
	log.Log(context.Background(), slog.LevelInfo, "without id")
	assert.NotContains(t, buf.String(), "request_id")
}
