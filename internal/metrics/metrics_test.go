package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRegistrationCounters(t *testing.T) {
	ObserveRegistration(OutcomeSoldOut, 3*time.Millisecond)
	PublishFailed()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, Handler()(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `registration_attempts_total{outcome="sold_out"}`)
	assert.Contains(t, body, "registration_duration_seconds_bucket")
	assert.Contains(t, body, "registration_publish_failures_total")
}
