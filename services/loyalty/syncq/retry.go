// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package syncq

// Decision is the outcome of the retry policy for one drained operation.
type Decision int

const (
	// DecisionOK removes the operation: it was transmitted.
	DecisionOK Decision = iota

	// DecisionRetryLater re-queues the operation for the next cycle.
	DecisionRetryLater

	// DecisionDrop permanently removes the operation after exhausting its
	// retry budget. The mutation is discarded; the drop is logged and
	// counted so the loss is at least observable.
	DecisionDrop
)

// String returns the decision name for logs.
func (d Decision) String() string {
	switch d {
	case DecisionOK:
		return "ok"
	case DecisionRetryLater:
		return "retry_later"
	case DecisionDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// RetryPolicy bounds how many times a failing outbox operation is retried
// before it is permanently dropped. The drop branch is explicit so tests
// can pin the exact cutoff.
type RetryPolicy struct {
	// MaxRetries is the retry ceiling. An operation whose Retries counter
	// reaches this value is dropped. Default: 3.
	MaxRetries int
}

// DefaultRetryPolicy returns the production policy of three attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3}
}

// Decide maps a push result onto a decision. The operation's Retries
// counter must already be incremented for the failed attempt.
func (p RetryPolicy) Decide(op *Operation, pushErr error) Decision {
	if pushErr == nil {
		return DecisionOK
	}
	if op.Retries < p.MaxRetries {
		return DecisionRetryLater
	}
	return DecisionDrop
}
