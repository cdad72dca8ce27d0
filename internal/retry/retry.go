// Package retry provides bounded retry with exponential backoff for calls
// to remote collaborators. Retryability is an explicit enumerated decision
// made by a classifier, never inferred from error text.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
)

// Class is the retryability classification of a remote failure.
type Class int

const (
	// ClassTransient covers network failures, missing responses, server
	// errors, and rate limiting. Transient failures are retried.
	ClassTransient Class = iota

	// ClassPermanent covers validation-type failures (4xx). Permanent
	// failures surface immediately without retrying.
	ClassPermanent
)

// RemoteError is a failure returned by a remote collaborator, carrying the
// HTTP status that produced it. A zero StatusCode means no response arrived.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: no response: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// Classifier decides whether a failure is worth retrying.
type Classifier func(error) Class

// ClassifyRemote is the default classifier: network errors, absent
// responses, 5xx, and 429 are transient; any other 4xx is permanent.
func ClassifyRemote(err error) Class {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		switch {
		case remoteErr.StatusCode == 0:
			return ClassTransient
		case remoteErr.StatusCode == http.StatusTooManyRequests:
			return ClassTransient
		case remoteErr.StatusCode >= 500:
			return ClassTransient
		default:
			return ClassPermanent
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	// Unrecognized failures default to transient so a flaky collaborator
	// does not fail jobs that a retry would have saved.
	return ClassTransient
}

// Policy bounds a retried operation.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BaseDelay seeds the exponential backoff. Defaults to one second.
	BaseDelay time.Duration
}

// Do runs op, retrying transient failures with exponential backoff and
// jitter up to the policy's cap. Context cancellation aborts the wait.
// The last error is returned once retries are exhausted or a permanent
// failure is classified.
func Do(ctx context.Context, policy Policy, classify Classifier, op func(ctx context.Context) error) error {
	if classify == nil {
		classify = ClassifyRemote
	}

	base := policy.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	backoff := retry.NewExponential(base)
	backoff = retry.WithJitterPercent(50, backoff)
	backoff = retry.WithMaxRetries(uint64(policy.MaxRetries), backoff)

	log := logger.FromContext(ctx)
	attempt := 0

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}

		if classify(err) == ClassPermanent {
			log.Warn("permanent remote failure, not retrying",
				"attempt", attempt,
				"error", err)
			return err
		}

		log.Warn("transient remote failure, will retry",
			"attempt", attempt,
			"error", err)
		return retry.RetryableError(err)
	})
}
