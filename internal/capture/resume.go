package capture

import (
	"context"
)

// ResumeSignal blocks a capture session until the operator is ready to go on.
type ResumeSignal interface {
	// Wait shows prompt and blocks until the operator resumes or ctx ends.
	Wait(ctx context.Context, prompt string) error
}

// ImmediateResume never blocks. Used for unattended capture and tests.
type ImmediateResume struct{}

// Wait implements ResumeSignal.
func (ImmediateResume) Wait(ctx context.Context, prompt string) error {
	return ctx.Err()
}

// ChannelResume resumes when a value arrives on C. Prompt, when set,
// receives each prompt before waiting.
type ChannelResume struct {
	C      <-chan struct{}
	Prompt func(string)
}

// Wait implements ResumeSignal.
func (r ChannelResume) Wait(ctx context.Context, prompt string) error {
	if r.Prompt != nil {
		r.Prompt(prompt)
	}
	select {
	case <-r.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
