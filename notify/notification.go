// Package notify delivers write lifecycle notifications to presentation-layer collaborators.
package notify

import (
	"context"
	"time"
)

// Phase is the lifecycle phase of a write.
type Phase string

const (
	// PhaseUserApproval: the write waits for the signer's approval.
	PhaseUserApproval Phase = "user_approval"
	// PhaseProcessing: the write was submitted and waits for inclusion.
	// It is emitted again periodically while the write is pending.
	PhaseProcessing Phase = "processing"
	PhaseConfirmed  Phase = "confirmed"
	PhaseFailed     Phase = "failed"
)

// Notification reports that a write entered, or is still in, a phase.
type Notification struct {
	OperationName string    `json:"operation_name"`
	Phase         Phase     `json:"phase"`
	Timestamp     time.Time `json:"timestamp"`
	// Handle is the transaction hash, once the write was submitted.
	Handle string `json:"handle,omitempty"`
	// Elapsed is the time since the write was requested.
	Elapsed time.Duration `json:"elapsed"`
	// ErrorKind and Error describe the failure of a failed write.
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Notifier receives lifecycle notifications. Notify must not block on slow consumers.
type Notifier interface {
	Notify(ctx context.Context, notification Notification)
}

// Fanout delivers every notification to each notifier, in order.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, notification Notification) {
	for _, notifier := range f {
		notifier.Notify(ctx, notification)
	}
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(context.Context, Notification) {}
