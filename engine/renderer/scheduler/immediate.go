package scheduler

import (
	"context"
	"sync/atomic"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/commands"
)

// Immediate is the single-thread mode: there is no consumer goroutine and
// Submit replays the frame before returning.
type Immediate struct {
	replayer Replayer
	options  options
	frame    uint64
	closed   atomic.Bool
}

func NewImmediate(replayer Replayer, opts ...Option) *Immediate {
	return &Immediate{
		replayer: replayer,
		options:  buildOptions(opts),
	}
}

func (s *Immediate) Submit(ctx context.Context, list *commands.CommandList) error {
	if s.closed.Load() {
		return core.ErrSchedulerClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.frame++
	replay(s.replayer, &s.options, s.frame, list)
	return nil
}

func (s *Immediate) Run(ctx context.Context) error {
	return nil
}

func (s *Immediate) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Immediate) Mode() Mode {
	return ModeImmediate
}
