package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/commands"
)

var errAlreadyRunning = errors.New("scheduler consumer already running")

// Pipelined overlaps the producer building frame N+1 with the consumer
// replaying frame N. The mailbox holds at most one frame: a second Submit
// blocks until the consumer has taken the first one.
type Pipelined struct {
	replayer Replayer
	options  options
	pool     *commands.Pool

	mailbox   chan *Frame
	done      chan struct{}
	closeOnce sync.Once
	running   atomic.Bool

	submitted atomic.Uint64
	replayed  atomic.Uint64
}

func NewPipelined(replayer Replayer, opts ...Option) *Pipelined {
	return &Pipelined{
		replayer: replayer,
		options:  buildOptions(opts),
		pool:     commands.NewPool(),
		mailbox:  make(chan *Frame, 1),
		done:     make(chan struct{}),
	}
}

// Submit is called by the single producer goroutine. It returns nil only for
// frames the consumer will replay; a frame racing Close is handed back with
// ErrSchedulerClosed.
func (p *Pipelined) Submit(ctx context.Context, list *commands.CommandList) error {
	select {
	case <-p.done:
		return core.ErrSchedulerClosed
	default:
	}

	frame := &Frame{Number: p.submitted.Load() + 1, Commands: p.pool.Get()}
	frame.Commands.Append(list)

	select {
	case p.mailbox <- frame:
		select {
		case <-p.done:
			// Close raced the send and Run may already have drained
			if p.reclaim() {
				list.Append(frame.Commands)
				p.pool.Put(frame.Commands)
				return core.ErrSchedulerClosed
			}
		default:
		}
		p.submitted.Store(frame.Number)
		return nil
	case <-p.done:
		list.Append(frame.Commands)
		p.pool.Put(frame.Commands)
		return core.ErrSchedulerClosed
	case <-ctx.Done():
		// hand the commands back so the caller still owns them
		list.Append(frame.Commands)
		p.pool.Put(frame.Commands)
		return ctx.Err()
	}
}

func (p *Pipelined) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}
	defer p.running.Store(false)

	for {
		select {
		case frame := <-p.mailbox:
			p.replay(frame)
		case <-p.done:
			p.drain()
			return nil
		case <-ctx.Done():
			p.drain()
			return ctx.Err()
		}
	}
}

// reclaim takes the just sent frame back out of the mailbox. With a single
// producer the mailbox holds nothing else. It reports false when the consumer
// already received the frame, in which case it is replayed.
func (p *Pipelined) reclaim() bool {
	select {
	case <-p.mailbox:
		return true
	default:
		return false
	}
}

// drain replays the frame left in the mailbox, if any.
func (p *Pipelined) drain() {
	select {
	case frame := <-p.mailbox:
		core.LogDebug("replaying pending frame %d before exit", frame.Number)
		p.replay(frame)
	default:
	}
}

func (p *Pipelined) replay(frame *Frame) {
	replay(p.replayer, &p.options, frame.Number, frame.Commands)
	p.replayed.Store(frame.Number)
	p.pool.Put(frame.Commands)
}

// Close wakes the consumer and makes further Submit calls fail. It does not
// wait for Run to return.
func (p *Pipelined) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	return nil
}

func (p *Pipelined) Mode() Mode {
	return ModePipelined
}

// Submitted is the number of the last frame accepted by the mailbox.
func (p *Pipelined) Submitted() uint64 {
	return p.submitted.Load()
}

// Replayed is the number of the last frame the consumer finished.
func (p *Pipelined) Replayed() uint64 {
	return p.replayed.Load()
}
