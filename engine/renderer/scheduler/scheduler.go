package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/commands"
)

type Mode uint8

const (
	// ModeImmediate replays every frame on the submitting goroutine.
	ModeImmediate Mode = iota
	// ModePipelined hands frames to a render goroutine through a one-slot mailbox.
	ModePipelined
)

func (m Mode) String() string {
	switch m {
	case ModeImmediate:
		return "immediate"
	case ModePipelined:
		return "pipelined"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "immediate", "single", "":
		return ModeImmediate, nil
	case "pipelined", "multi":
		return ModePipelined, nil
	}
	return ModeImmediate, fmt.Errorf("%w: unknown threading mode %q", core.ErrInvalidConfig, s)
}

// Replayer executes a submitted frame. The list is empty when it returns.
type Replayer interface {
	ReplayFrame(number uint64, list *commands.CommandList)
}

// Frame is a submitted command list and its sequence number.
type Frame struct {
	Number   uint64
	Commands *commands.CommandList
}

type Scheduler interface {
	// Submit moves the content of list into the scheduler. The list is empty
	// afterwards and may be reused by the caller for the next tick.
	Submit(ctx context.Context, list *commands.CommandList) error
	// Run is the consumer loop. It returns after Close once any pending frame
	// has been replayed, or when ctx is done.
	Run(ctx context.Context) error
	Close() error
	Mode() Mode
}

type options struct {
	metrics *core.FrameMetrics
	onFrame func(number uint64)
}

type Option func(*options)

// WithMetrics records the replay time of every frame.
func WithMetrics(m *core.FrameMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithFrameCallback is called on the consumer goroutine after each frame.
func WithFrameCallback(fn func(number uint64)) Option {
	return func(o *options) {
		o.onFrame = fn
	}
}

func New(mode Mode, replayer Replayer, opts ...Option) (Scheduler, error) {
	switch mode {
	case ModeImmediate:
		return NewImmediate(replayer, opts...), nil
	case ModePipelined:
		return NewPipelined(replayer, opts...), nil
	}
	return nil, fmt.Errorf("%w: %s", core.ErrInvalidConfig, mode)
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// replay runs one frame and reports it.
func replay(replayer Replayer, o *options, number uint64, list *commands.CommandList) {
	start := time.Now()
	replayer.ReplayFrame(number, list)
	if o.metrics != nil {
		o.metrics.Update(time.Since(start).Seconds())
	}
	if o.onFrame != nil {
		o.onFrame(number)
	}
}
