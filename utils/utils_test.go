package utils

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "read timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestRetrySucceedsAfterTimeouts(t *testing.T) {
	attempts := 0
	err := Retry(3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return timeoutError{}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := Retry(3, time.Millisecond, func() error {
		attempts++
		return timeoutError{}
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	attempts := 0
	err := Retry(3, time.Millisecond, func() error {
		attempts++
		return fmt.Errorf("unexpected status 404")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	attempts := 0
	err := Retry(3, time.Millisecond, func() error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(timeoutError{}))
	assert.True(t, IsRetryable(syscall.ECONNREFUSED))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", syscall.ECONNRESET)))
	assert.False(t, IsRetryable(errors.New("malformed response body")))
}

func TestIsInvalidSeason(t *testing.T) {
	assert.False(t, IsInvalidSeason("2024-25"))
	assert.False(t, IsInvalidSeason("2014-15"))
	assert.True(t, IsInvalidSeason("1997-98"))
	assert.True(t, IsInvalidSeason("2024"))
}
