package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLifecycle(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	assert.False(t, IsEnabled())
	assert.Nil(t, GetRegistry())

	reg := InitRegistry()
	require.NotNil(t, reg)
	assert.True(t, IsEnabled())
	assert.Same(t, reg, InitRegistry())

	Reset()
	assert.False(t, IsEnabled())
}

func TestHandler(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	t.Run("DisabledIsNotFound", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("EnabledServesRuntimeMetrics", func(t *testing.T) {
		InitRegistry()
		rec := httptest.NewRecorder()
		Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})
}
