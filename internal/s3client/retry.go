package s3client

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

const (
	maxAttempts    = 4
	initialBackoff = 200 * time.Millisecond
)

// withRetry runs fn with bounded retry and doubling backoff. Only
// transient failures retry; permission and non-existence responses
// surface immediately.
func withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := initialBackoff
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		slog.Warn("retrying S3 operation",
			"op", op, "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

// isRetryable classifies an error as transient. Throttling and server
// errors retry; client errors (not found, access denied) are terminal.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsNotFound(err) || IsAccessDenied(err) {
		return false
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		return status >= 500 || status == 429
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "Throttling", "SlowDown",
			"RequestTimeout", "InternalError", "ServiceUnavailable":
			return true
		}
		return false
	}

	// Raw transport failures (connection reset, DNS, timeouts).
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsNotFound reports whether err is a non-existence response from the
// service.
func IsNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404
}

// IsAccessDenied reports whether err is a permission response from the
// service.
func IsAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == 403
}
