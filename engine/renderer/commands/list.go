package commands

import "sync"

// noCopy makes go vet's copylocks check flag a CommandList passed by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Dispatcher executes one command. Backends implement it with a type switch
// over the command kinds.
type Dispatcher interface {
	Dispatch(cmd Command)
}

// CommandList is an ordered sequence of recorded commands owned by exactly
// one party at a time. Ownership moves with Take and Append; a list must not
// be used by the producer once it has been submitted.
type CommandList struct {
	_        noCopy
	commands []Command
}

func New() *CommandList {
	return &CommandList{}
}

// Len reports how many commands are recorded.
func (l *CommandList) Len() int {
	return len(l.commands)
}

// At returns the i-th recorded command.
func (l *CommandList) At(i int) Command {
	return l.commands[i]
}

// Push appends an already built command. Nil commands are dropped.
func (l *CommandList) Push(cmd Command) {
	if cmd == nil {
		return
	}
	l.commands = append(l.commands, cmd)
}

func (l *CommandList) SetupView() *SetupView {
	c := &SetupView{}
	l.commands = append(l.commands, c)
	return c
}

func (l *CommandList) Clear() *Clear {
	c := &Clear{Depth: 1.0}
	l.commands = append(l.commands, c)
	return c
}

func (l *CommandList) FillBuffer() *FillBuffer {
	c := &FillBuffer{}
	l.commands = append(l.commands, c)
	return c
}

func (l *CommandList) FillTexture() *FillTexture {
	c := &FillTexture{}
	l.commands = append(l.commands, c)
	return c
}

func (l *CommandList) SetupMaterial() *SetupMaterial {
	c := &SetupMaterial{}
	l.commands = append(l.commands, c)
	return c
}

func (l *CommandList) Render() *Render {
	c := &Render{Instances: 1}
	l.commands = append(l.commands, c)
	return c
}

// Take moves the recorded commands out, leaving the list empty.
func (l *CommandList) Take() []Command {
	taken := l.commands
	l.commands = nil
	return taken
}

// Append moves every command of other to the end of l. other is left empty.
func (l *CommandList) Append(other *CommandList) {
	if other == nil || other == l || len(other.commands) == 0 {
		return
	}
	if len(l.commands) == 0 {
		// swap so the move is O(1) and other keeps a reusable backing array
		l.commands, other.commands = other.commands, l.commands[:0]
		return
	}
	l.commands = append(l.commands, other.commands...)
	clear(other.commands)
	other.commands = other.commands[:0]
}

// Replay dispatches every command in insertion order and then clears the list.
func (l *CommandList) Replay(d Dispatcher) {
	for _, cmd := range l.commands {
		d.Dispatch(cmd)
	}
	l.Reset()
}

// Reset drops all commands but keeps the backing array for reuse.
func (l *CommandList) Reset() {
	clear(l.commands)
	l.commands = l.commands[:0]
}

// Pool recycles command lists between the producer and the render thread.
type Pool struct {
	pool sync.Pool
}

func NewPool() *Pool {
	p := &Pool{}
	p.pool.New = func() any { return New() }
	return p
}

func (p *Pool) Get() *CommandList {
	return p.pool.Get().(*CommandList)
}

// Put resets l and returns it to the pool.
func (p *Pool) Put(l *CommandList) {
	if l == nil {
		return
	}
	l.Reset()
	p.pool.Put(l)
}
