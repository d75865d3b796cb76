// mailbox.go - a process's inbound message queue.
//
// Grounded on runtime_ipc.go's goroutine-and-channel accept loop (a
// background goroutine owns a resource, callers interact with it only
// through channel operations) and coprocessor_manager.go's ticket/
// completion bookkeeping for the wait-with-timeout discipline, adapted
// here to an in-process FIFO of owned Values instead of cross-process
// Unix-socket framing. A buffered channel plus a mutex-guarded backlog
// gives blocking receive-with-timeout without sync.Cond's lack of native
// deadline support.

package viua

import (
	"sync"
	"time"
)

// Mailbox is a thread-safe FIFO of Values delivered to a process by
// `send`, drained by that same process's `receive`. Mailboxes are
// unbounded (spec.md §5: backpressure is explicitly out of scope), so Send
// never blocks.
type Mailbox struct {
	mu     sync.Mutex
	queue  []Value
	notify chan struct{} // buffered cap 1, signals "queue became non-empty or closed"
	closed bool
}

func NewMailbox() *Mailbox {
	return &Mailbox{notify: make(chan struct{}, 1)}
}

func (mb *Mailbox) wake() {
	select {
	case mb.notify <- struct{}{}:
	default:
	}
}

// Send enqueues a message.
func (mb *Mailbox) Send(v Value) error {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return NewVMError(ErrUndefinedSymbol, "send to a terminated process")
	}
	mb.queue = append(mb.queue, v)
	mb.mu.Unlock()
	mb.wake()
	return nil
}

// Receive blocks until a message is available, the timeout elapses, or
// the mailbox is closed. A Timeout with Infinite set never gives up on
// its own.
func (mb *Mailbox) Receive(timeout Timeout) (Value, error) {
	for {
		if v, err, ok := mb.tryPop(); ok {
			return v, err
		}
		if timeout.Infinite {
			<-mb.notify
			continue
		}
		select {
		case <-mb.notify:
			continue
		case <-time.After(time.Duration(timeout.Millis) * time.Millisecond):
			return nil, NewVMError(ErrTimeout, "receive timed out after %dms", timeout.Millis)
		}
	}
}

// tryPop reports ok=true when it has a definitive answer (either a value
// or a terminal "closed with nothing pending" error); ok=false means the
// caller should keep waiting.
func (mb *Mailbox) tryPop() (Value, error, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.queue) > 0 {
		v := mb.queue[0]
		mb.queue = mb.queue[1:]
		return v, nil, true
	}
	if mb.closed {
		return nil, NewVMError(ErrUndefinedSymbol, "mailbox closed with no pending messages"), true
	}
	return nil, nil, false
}

// Len reports the number of pending messages, used by introspection
// opcodes and tests.
func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.queue)
}

// Close marks the mailbox closed and wakes any blocked receiver, called by
// the kernel when the owning process terminates.
func (mb *Mailbox) Close() {
	mb.mu.Lock()
	mb.closed = true
	mb.mu.Unlock()
	mb.wake()
}
