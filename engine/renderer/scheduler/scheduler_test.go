package scheduler

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/commands"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

// recorder replays frames into a flat log of (frame, offset) pairs. Every
// FillBuffer recorded by the tests carries its frame number as offset.
type recorder struct {
	mu     sync.Mutex
	frames []uint64
	log    []uint64
	gate   chan struct{}
}

func (r *recorder) Dispatch(cmd commands.Command) {
	if fb, ok := cmd.(*commands.FillBuffer); ok {
		r.log = append(r.log, fb.Offset)
	}
}

func (r *recorder) ReplayFrame(number uint64, list *commands.CommandList) {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, number)
	list.Replay(r)
}

func (r *recorder) snapshot() ([]uint64, []uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.frames...), append([]uint64(nil), r.log...)
}

func frameList(marker uint64, n int) *commands.CommandList {
	l := commands.New()
	for i := 0; i < n; i++ {
		l.FillBuffer().SetOffset(marker)
	}
	return l
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"immediate", ModeImmediate, false},
		{"single", ModeImmediate, false},
		{"", ModeImmediate, false},
		{"Pipelined", ModePipelined, false},
		{"multi", ModePipelined, false},
		{"triple", ModeImmediate, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestImmediateReplaysInline(t *testing.T) {
	rec := &recorder{}
	var presented []uint64
	s := NewImmediate(rec, WithFrameCallback(func(n uint64) { presented = append(presented, n) }))

	l := frameList(1, 3)
	if err := s.Submit(context.Background(), l); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("Len() after Submit = %d, want 0", l.Len())
	}
	frames, log := rec.snapshot()
	if len(frames) != 1 || len(log) != 3 {
		t.Errorf("frames, commands = %v, %v, want 1 frame of 3 commands", frames, log)
	}
	if len(presented) != 1 || presented[0] != 1 {
		t.Errorf("presented = %v, want [1]", presented)
	}

	s.Close()
	if err := s.Submit(context.Background(), frameList(2, 1)); !errors.Is(err, core.ErrSchedulerClosed) {
		t.Errorf("Submit() after Close error = %v, want ErrSchedulerClosed", err)
	}
}

func TestPipelinedBackpressure(t *testing.T) {
	rec := &recorder{}
	p := NewPipelined(rec)
	ctx := context.Background()

	// no consumer yet: the first frame fills the mailbox
	if err := p.Submit(ctx, frameList(1, 2)); err != nil {
		t.Fatalf("Submit(1) error = %v", err)
	}

	second := make(chan error, 1)
	go func() {
		second <- p.Submit(ctx, frameList(2, 2))
	}()

	select {
	case err := <-second:
		t.Fatalf("Submit(2) returned %v while the mailbox was full", err)
	case <-time.After(50 * time.Millisecond):
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- p.Run(ctx)
	}()

	select {
	case err := <-second:
		if err != nil {
			t.Fatalf("Submit(2) error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Submit(2) still blocked after the consumer started")
	}

	p.Close()
	if err := <-runErr; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	frames, log := rec.snapshot()
	if len(frames) != 2 || frames[0] != 1 || frames[1] != 2 {
		t.Errorf("replayed frames = %v, want [1 2]", frames)
	}
	want := []uint64{1, 1, 2, 2}
	if len(log) != len(want) {
		t.Fatalf("replayed commands = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("replayed commands = %v, want %v", log, want)
			break
		}
	}
}

// TestPipelinedBackpressureDelayedConsumer holds a running consumer inside
// the replay of frame 1: frame 2 fills the mailbox and frame 3 has to wait.
func TestPipelinedBackpressureDelayedConsumer(t *testing.T) {
	rec := &recorder{gate: make(chan struct{})}
	p := NewPipelined(rec)
	ctx := context.Background()

	runErr := make(chan error, 1)
	go func() {
		runErr <- p.Run(ctx)
	}()

	if err := p.Submit(ctx, frameList(1, 1)); err != nil {
		t.Fatalf("Submit(1) error = %v", err)
	}
	// returns once the consumer has taken frame 1 and is stuck replaying it
	if err := p.Submit(ctx, frameList(2, 1)); err != nil {
		t.Fatalf("Submit(2) error = %v", err)
	}

	third := make(chan error, 1)
	go func() {
		third <- p.Submit(ctx, frameList(3, 1))
	}()
	select {
	case err := <-third:
		t.Fatalf("Submit(3) returned %v while the consumer was busy and the mailbox full", err)
	case <-time.After(50 * time.Millisecond):
	}
	if frames, _ := rec.snapshot(); len(frames) != 0 {
		t.Fatalf("replayed frames = %v before the consumer was released, want none", frames)
	}

	close(rec.gate)
	select {
	case err := <-third:
		if err != nil {
			t.Fatalf("Submit(3) error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Submit(3) still blocked after the consumer was released")
	}

	p.Close()
	if err := <-runErr; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	frames, _ := rec.snapshot()
	if len(frames) != 3 || frames[0] != 1 || frames[1] != 2 || frames[2] != 3 {
		t.Errorf("replayed frames = %v, want [1 2 3]", frames)
	}
}

// TestPipelinedSubmitRacingClose closes the scheduler while a Submit is
// blocked on a full mailbox. A nil error must mean the frame was replayed;
// otherwise the commands are handed back.
func TestPipelinedSubmitRacingClose(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		rec := &recorder{}
		p := NewPipelined(rec)
		if err := p.Submit(ctx, frameList(1, 1)); err != nil {
			t.Fatalf("Submit(1) error = %v", err)
		}

		l := frameList(2, 1)
		submitErr := make(chan error, 1)
		go func() {
			submitErr <- p.Submit(ctx, l)
		}()
		go p.Close()
		if err := p.Run(ctx); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		err := <-submitErr

		frames, _ := rec.snapshot()
		replayed := len(frames) == 2 && frames[1] == 2
		switch {
		case err == nil && !replayed:
			t.Fatalf("iteration %d: Submit(2) = nil but replayed frames = %v", i, frames)
		case err != nil && !errors.Is(err, core.ErrSchedulerClosed):
			t.Fatalf("iteration %d: Submit(2) error = %v, want ErrSchedulerClosed", i, err)
		case err != nil && (replayed || l.Len() != 1):
			t.Fatalf("iteration %d: rejected Submit(2) left Len() = %d, replayed frames = %v", i, l.Len(), frames)
		}
	}
}

func TestPipelinedOrderingUnderLoad(t *testing.T) {
	rec := &recorder{}
	metrics := core.NewFrameMetrics()
	p := NewPipelined(rec, WithMetrics(metrics))
	ctx := context.Background()

	runErr := make(chan error, 1)
	go func() {
		runErr <- p.Run(ctx)
	}()

	const frames = 200
	l := commands.New()
	for i := uint64(1); i <= frames; i++ {
		for j := 0; j < 5; j++ {
			l.FillBuffer().SetOffset(i)
		}
		if err := p.Submit(ctx, l); err != nil {
			t.Fatalf("Submit(%d) error = %v", i, err)
		}
		if l.Len() != 0 {
			t.Fatalf("Len() after Submit(%d) = %d, want 0", i, l.Len())
		}
	}
	p.Close()
	if err := <-runErr; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, log := rec.snapshot()
	if len(got) != frames {
		t.Fatalf("replayed %d frames, want %d", len(got), frames)
	}
	for i, n := range got {
		if n != uint64(i+1) {
			t.Fatalf("frame at %d = %d, want %d", i, n, i+1)
		}
	}
	// commands of one frame are never interleaved with another
	for i, marker := range log {
		if want := uint64(i/5 + 1); marker != want {
			t.Fatalf("command %d belongs to frame %d, want %d", i, marker, want)
		}
	}
	if metrics.Total() != frames {
		t.Errorf("metrics.Total() = %d, want %d", metrics.Total(), frames)
	}
	if p.Replayed() != frames || p.Submitted() != frames {
		t.Errorf("Submitted(), Replayed() = %d, %d, want %d", p.Submitted(), p.Replayed(), frames)
	}
}

func TestPipelinedCloseDrainsPendingFrame(t *testing.T) {
	rec := &recorder{}
	p := NewPipelined(rec)
	ctx := context.Background()

	if err := p.Submit(ctx, frameList(1, 1)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	p.Close()
	if err := p.Submit(ctx, frameList(2, 1)); !errors.Is(err, core.ErrSchedulerClosed) {
		t.Errorf("Submit() after Close error = %v, want ErrSchedulerClosed", err)
	}

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	frames, _ := rec.snapshot()
	if len(frames) != 1 || frames[0] != 1 {
		t.Errorf("replayed frames = %v, want [1]", frames)
	}
}

func TestPipelinedCloseReleasesIdleConsumer(t *testing.T) {
	p := NewPipelined(&recorder{})
	runErr := make(chan error, 1)
	go func() {
		runErr <- p.Run(context.Background())
	}()

	p.Close()
	p.Close()
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run() did not return after Close")
	}
}

func TestPipelinedSubmitCancelled(t *testing.T) {
	p := NewPipelined(&recorder{})
	if err := p.Submit(context.Background(), frameList(1, 1)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	l := frameList(2, 3)
	if err := p.Submit(ctx, l); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Submit() error = %v, want DeadlineExceeded", err)
	}
	if l.Len() != 3 {
		t.Errorf("Len() after cancelled Submit = %d, want 3", l.Len())
	}
	if p.Submitted() != 1 {
		t.Errorf("Submitted() = %d, want 1", p.Submitted())
	}
}

func TestPipelinedSingleConsumer(t *testing.T) {
	rec := &recorder{gate: make(chan struct{})}
	p := NewPipelined(rec)
	ctx := context.Background()
	if err := p.Submit(ctx, frameList(1, 1)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- p.Run(ctx)
	}()
	// wait until the first consumer is inside the replay
	for !p.running.Load() {
		time.Sleep(time.Millisecond)
	}
	if err := p.Run(ctx); !errors.Is(err, errAlreadyRunning) {
		t.Errorf("second Run() error = %v, want errAlreadyRunning", err)
	}

	close(rec.gate)
	p.Close()
	if err := <-runErr; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestNew(t *testing.T) {
	for _, mode := range []Mode{ModeImmediate, ModePipelined} {
		s, err := New(mode, &recorder{})
		if err != nil {
			t.Fatalf("New(%v) error = %v", mode, err)
		}
		if s.Mode() != mode {
			t.Errorf("Mode() = %v, want %v", s.Mode(), mode)
		}
	}
	if _, err := New(Mode(9), &recorder{}); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("New(9) error = %v, want ErrInvalidConfig", err)
	}
}
