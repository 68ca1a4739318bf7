package job

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Poll defaults. Job durations are short and bounded, so a fixed interval
// beats adaptive backoff for kiosk snappiness.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 180 * time.Second
)

// PollOptions tunes AwaitTerminal.
type PollOptions struct {
	Interval time.Duration
	Timeout  time.Duration
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultPollTimeout
	}
	return o
}

// AwaitTerminal polls the store until the job reaches video_ready or failed,
// returning the final snapshot. It returns ErrPollTimeout when the deadline
// elapses first, ErrNotFound if the job vanishes (swept or superseded), and
// the context error if the caller abandons the wait. The polling goroutine
// never outlives the call.
func AwaitTerminal(ctx context.Context, s *Store, id uuid.UUID, opts PollOptions) (*Job, error) {
	opts = opts.withDefaults()

	// Check once up front so an already-terminal job resolves immediately.
	j, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if j.State.Terminal() {
		return j, nil
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrPollTimeout
		case <-ticker.C:
			j, err := s.Get(id)
			if err != nil {
				return nil, err
			}
			if j.State.Terminal() {
				return j, nil
			}
		}
	}
}
