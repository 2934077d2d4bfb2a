package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodeOf(t *testing.T) {
	err := NewIntegrationError(ProviderSlack, CodeConfigNotFound, "no config for acme")
	assert.Equal(t, CodeConfigNotFound, ErrorCodeOf(err))
	assert.True(t, IsCode(err, CodeConfigNotFound))
	assert.False(t, IsCode(err, CodeSyncInProgress))

	wrapped := fmt.Errorf("resolving adapter: %w", err)
	assert.Equal(t, CodeConfigNotFound, ErrorCodeOf(wrapped))

	assert.Equal(t, ErrorCode(""), ErrorCodeOf(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), ErrorCodeOf(nil))
}

func TestSpecializationsMatchBase(t *testing.T) {
	var base *IntegrationError

	connErr := NewConnectionError(ProviderQuickBooks, "dial tcp refused", errors.New("refused"))
	require.True(t, errors.As(connErr, &base))
	assert.Equal(t, CodeConnectionFailed, base.Code)
	assert.Equal(t, ProviderQuickBooks, base.Provider)

	var rle *RateLimitError
	err := fmt.Errorf("fetching invoices: %w", NewRateLimitError(ProviderXero, 30*time.Second))
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 30*time.Second, rle.RetryAfter)
	assert.True(t, IsCode(err, CodeRateLimited))
}

func TestIntegrationErrorMessage(t *testing.T) {
	err := NewIntegrationError(ProviderWorkday, CodeMissingEnvVars, "missing WORKDAY_CLIENT_SECRET")
	assert.Equal(t, "workday [MISSING_ENV_VARS]: missing WORKDAY_CLIENT_SECRET", err.Error())

	err = NewIntegrationError("", CodeInvalidSchedule, "bad cron")
	assert.Equal(t, "[INVALID_SCHEDULE]: bad cron", err.Error())
}

func TestSyncJobKey(t *testing.T) {
	j := SyncJob{OrgID: "acme", Provider: ProviderSlack, SyncType: SyncTypeIncremental}
	assert.Equal(t, "acme:slack:incremental", j.Key())
}
