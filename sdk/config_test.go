package sdk

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/metabase-go/internal/testutil"
	"github.com/birbparty/metabase-go/models"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.Cache.Enabled)
	assert.True(t, cfg.Service.EnableValidation)
	assert.NotEmpty(t, cfg.UserAgent)
}

func TestConfigBuilder(t *testing.T) {
	cfg := DefaultConfig().
		WithBaseURL("https://bi.example.com/").
		WithTimeout(10*time.Second).
		WithUserAgent("reports/2.0").
		WithHeader("X-Team", "data").
		WithCache(false).
		WithRetries(5).
		WithRequestsPerSecond(20, 0).
		WithSessionTTL(time.Hour)

	assert.Equal(t, "https://bi.example.com", cfg.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, "reports/2.0", cfg.UserAgent)
	assert.Equal(t, "data", cfg.Headers["X-Team"])
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.SessionTTL)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Burst)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{"missing base URL", DefaultConfig()},
		{"bad scheme", DefaultConfig().WithBaseURL("ftp://bi.example.com")},
		{"no host", DefaultConfig().WithBaseURL("https://")},
		{"negative timeout", DefaultConfig().WithBaseURL("https://bi.example.com").WithTimeout(-time.Second)},
		{"negative rate", DefaultConfig().WithBaseURL("https://bi.example.com").WithRequestsPerSecond(-1, 1)},
		{"negative session TTL", DefaultConfig().WithBaseURL("https://bi.example.com").WithSessionTTL(-time.Second)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestNewClientRejectsBadConfig(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))

	_, err = NewClient(DefaultConfig().WithBaseURL("bi.example.com"))
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestNewClientCopiesConfig(t *testing.T) {
	ms := newMockServer(t)
	ms.Respond("GET /api/health", http.StatusOK, map[string]string{"status": "ok"})

	cfg := DefaultConfig().WithBaseURL(ms.URL + "/").WithHeader("X-Team", "data")
	client, err := NewClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	cfg.Headers["X-Team"] = "changed"
	cfg.BaseURL = "https://elsewhere.example.com"

	assert.Equal(t, ms.URL, client.BaseURL())
	_, err = client.HealthCheck(context.Background())
	require.NoError(t, err)

	sent := ms.RequestsTo(http.MethodGet, "/api/health")
	require.Len(t, sent, 1)
	assert.Equal(t, "data", sent[0].Headers.Get("X-Team"))
}

func TestErrorsExposeRequestDetails(t *testing.T) {
	ms := newMockServer(t)
	ms.Respond("GET /api/card/9", http.StatusNotFound, testutil.Raw("Not found."))
	client := newTestClient(t, ms)
	login(t, client)

	_, err := client.GetCard(context.Background(), 9)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsRetryable(err))

	var mbErr *Error
	require.True(t, errors.As(err, &mbErr))
	assert.Equal(t, KindNotFound, mbErr.Kind)
	assert.Equal(t, http.StatusNotFound, mbErr.StatusCode)
	assert.Equal(t, "/api/card/9", mbErr.Path)
	assert.NotEmpty(t, mbErr.RequestID)
}

func TestServiceConfigIsApplied(t *testing.T) {
	ms := newMockServer(t)
	ms.Respond("GET /api/card/1", http.StatusOK, testutil.TestCard(1, "C"))
	svc := DefaultConfig().Service
	svc.RequireArchiveBeforeDelete = true
	client := newTestClient(t, ms, func(c *Config) { c.WithServiceConfig(svc) })
	login(t, client)

	err := client.DeleteCard(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, ms.RequestsTo(http.MethodDelete, "/api/card/1"))
}

func TestCredentialsAreValidated(t *testing.T) {
	ms := newMockServer(t)
	client := newTestClient(t, ms)

	err := client.Authenticate(context.Background(), models.EmailPassword{Email: "a@x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, ms.GetRequestCount())
}
