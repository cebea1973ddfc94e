// Package notify turns trigger events into notifications and delivers them.
package notify

import (
	"context"

	"github.com/vigilhq/vigil/rules"
)

// EmailGenerator renders trigger events into notification text for one
// email job.
type EmailGenerator interface {
	GenerateEmail(ctx context.Context, spec rules.EmailJobSpec, events []rules.TriggerEvent) (string, error)
}

// EmailSender delivers a generated notification. Fire-and-forget from the
// scheduler's perspective: a send failure is logged and the cycle moves on.
type EmailSender interface {
	SendEmail(ctx context.Context, address, body string) error
}
