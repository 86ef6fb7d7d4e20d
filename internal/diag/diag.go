// Package diag is the diagnostic text sink of the control loop.
//
// Delivery is best effort: a full or slow sink drops lines instead of
// stalling the caller, so logging can never shift control timing.
package diag

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
)

type Sink interface {
	Logf(format string, args ...any)
}

type discard struct{}

func (discard) Logf(string, ...any) {}

// Discard drops every line.
var Discard Sink = discard{}

// Async queues lines for a background writer backed by glog.
type Async struct {
	lines   chan string
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
	write   func(string)
}

func NewAsync(capacity int) *Async {
	return newAsync(capacity, func(line string) { glog.InfoDepth(1, line) })
}

func newAsync(capacity int, write func(string)) *Async {
	if capacity < 1 {
		capacity = 1
	}
	a := &Async{
		lines: make(chan string, capacity),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		write: write,
	}
	go a.drain()
	return a
}

func (a *Async) Logf(format string, args ...any) {
	select {
	case a.lines <- fmt.Sprintf(format, args...):
	default:
		a.dropped.Add(1)
	}
}

// Dropped is the number of lines lost to a full queue.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Close flushes queued lines and stops the writer. Lines logged afterwards
// are silently dropped once the queue fills.
func (a *Async) Close() {
	a.once.Do(func() {
		close(a.quit)
		<-a.done
		glog.Flush()
	})
}

func (a *Async) drain() {
	defer close(a.done)
	for {
		select {
		case line := <-a.lines:
			a.write(line)
		case <-a.quit:
			for {
				select {
				case line := <-a.lines:
					a.write(line)
				default:
					return
				}
			}
		}
	}
}

// Memory keeps every line; used by tests and the live dashboard.
type Memory struct {
	mu    sync.Mutex
	lines []string
}

func (m *Memory) Logf(format string, args ...any) {
	m.mu.Lock()
	m.lines = append(m.lines, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

func (m *Memory) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	return out
}
