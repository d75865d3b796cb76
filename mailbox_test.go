package viua

import (
	"errors"
	"testing"
	"time"
)

func TestMailboxSendReceiveFIFO(t *testing.T) {
	mb := NewMailbox()
	mb.Send(Integer(1))
	mb.Send(Integer(2))

	v, err := mb.Receive(Timeout{Infinite: true})
	if err != nil || v != Integer(1) {
		t.Fatalf("first receive = %v, %v; want Integer(1)", v, err)
	}
	v, err = mb.Receive(Timeout{Infinite: true})
	if err != nil || v != Integer(2) {
		t.Fatalf("second receive = %v, %v; want Integer(2)", v, err)
	}
}

func TestMailboxReceiveBlocksUntilSend(t *testing.T) {
	mb := NewMailbox()
	done := make(chan Value, 1)
	go func() {
		v, err := mb.Receive(Timeout{Infinite: true})
		if err != nil {
			t.Errorf("Receive: %v", err)
		}
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	mb.Send(Integer(9))

	select {
	case v := <-done:
		if v != Integer(9) {
			t.Fatalf("got %v, want Integer(9)", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("receive did not wake after send")
	}
}

func TestMailboxReceiveTimeoutExpires(t *testing.T) {
	mb := NewMailbox()
	_, err := mb.Receive(Timeout{Millis: 10})
	if err == nil {
		t.Fatalf("expected TimeoutError when nothing is ever sent")
	}
	var verr *VMError
	if !errors.As(err, &verr) || verr.Kind != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestMailboxCloseWakesBlockedReceiver(t *testing.T) {
	mb := NewMailbox()
	done := make(chan error, 1)
	go func() {
		_, err := mb.Receive(Timeout{Infinite: true})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	mb.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected an error from a closed, empty mailbox")
		}
	case <-time.After(time.Second):
		t.Fatalf("close did not wake the blocked receiver")
	}
}

func TestMailboxLenReflectsPending(t *testing.T) {
	mb := NewMailbox()
	if mb.Len() != 0 {
		t.Fatalf("new mailbox should be empty")
	}
	mb.Send(Integer(1))
	mb.Send(Integer(2))
	if mb.Len() != 2 {
		t.Fatalf("Len = %d, want 2", mb.Len())
	}
}
