package utils

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"runtime"
	"syscall"
	"time"

	"hoopcast/config"

	"github.com/cenkalti/backoff/v4"
)

func ErrorWithTrace(e error) error {
	_, file, line, _ := runtime.Caller(1)
	return fmt.Errorf("%s:%d\n\t%v", file, line, e)
}

func IsInvalidSeason(season string) bool {
	for _, s := range config.ValidSeasons {
		if s == season {
			return false
		}
	}
	return true
}

// IsRetryable reports whether err looks like a read-timeout or connection
// error. Everything else (bad status codes, decode failures) is permanent.
func IsRetryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		err = urlErr.Err
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Retry runs op up to attempts times with a fixed delay between tries,
// giving up immediately on errors IsRetryable rejects.
func Retry(attempts int, delay time.Duration, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1))
	return backoff.Retry(wrapped, policy)
}
