package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// scriptedStatus returns a StatusFunc that walks through the given
// readings, holding the final one forever.
func scriptedStatus(readings ...bool) StatusFunc {
	i := 0
	var mu sync.Mutex
	return func(ctx context.Context) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		r := readings[i]
		if i < len(readings)-1 {
			i++
		}
		return r, nil
	}
}

func collectEvents(c *PollChannel) (*sync.Mutex, *[]Event) {
	var mu sync.Mutex
	var events []Event
	c.OnEvent(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	return &mu, &events
}

func TestPollFlipEmitsDisconnect(t *testing.T) {
	c := NewPollChannel(scriptedStatus(true, true, false), nil)
	mu, events := collectEvents(c)
	c.sessionID = "s1"

	ctx := context.Background()
	c.pollOnce(ctx) // true, no previous
	c.pollOnce(ctx) // true -> true
	c.pollOnce(ctx) // true -> false: disconnect

	mu.Lock()
	defer mu.Unlock()

	var disconnects, statuses int
	for _, ev := range *events {
		switch ev.Kind {
		case KindDisconnected:
			disconnects++
		case KindStatus:
			statuses++
		}
	}
	if statuses != 3 {
		t.Errorf("expected 3 status snapshots, got %d", statuses)
	}
	if disconnects != 1 {
		t.Errorf("expected exactly 1 disconnect event, got %d", disconnects)
	}
}

func TestPollFalseToTrueDoesNotDisconnect(t *testing.T) {
	c := NewPollChannel(scriptedStatus(false, true), nil)
	mu, events := collectEvents(c)

	ctx := context.Background()
	c.pollOnce(ctx)
	c.pollOnce(ctx)

	mu.Lock()
	defer mu.Unlock()
	for _, ev := range *events {
		if ev.Kind == KindDisconnected {
			t.Fatal("false -> true must not synthesize a disconnect")
		}
	}
}

func TestPollErrorKeepsPreviousState(t *testing.T) {
	calls := 0
	status := func(ctx context.Context) (bool, error) {
		calls++
		switch calls {
		case 1:
			return true, nil
		case 2:
			return false, errors.New("transient")
		default:
			return false, nil
		}
	}
	c := NewPollChannel(status, nil)
	mu, events := collectEvents(c)

	ctx := context.Background()
	c.pollOnce(ctx) // true
	c.pollOnce(ctx) // error, ignored
	c.pollOnce(ctx) // false: flip fires now

	mu.Lock()
	defer mu.Unlock()
	var disconnects int
	for _, ev := range *events {
		if ev.Kind == KindDisconnected {
			disconnects++
		}
	}
	if disconnects != 1 {
		t.Errorf("expected 1 disconnect after error gap, got %d", disconnects)
	}
}

func TestPollChannelSendRequiresConnect(t *testing.T) {
	sent := 0
	c := NewPollChannel(scriptedStatus(true), func(ctx context.Context, ev Event) error {
		sent++
		return nil
	})

	if err := c.Send(Event{Kind: KindUserMessage, Text: "hi"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	if err := c.Connect(context.Background(), "s1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	if err := c.Send(Event{Kind: KindUserMessage, Text: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent != 1 {
		t.Errorf("expected 1 send, got %d", sent)
	}
}

func TestPollLoopOutlivesConnectContext(t *testing.T) {
	var polls atomic.Int32
	status := func(ctx context.Context) (bool, error) {
		polls.Add(1)
		return true, nil
	}
	c := NewPollChannel(status, nil)
	c.period = 5 * time.Millisecond

	// The Connect context bounds only the connection attempt; a caller
	// handing in a short-lived context must not kill the loop.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Connect(ctx, "s1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && polls.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if polls.Load() == 0 {
		t.Fatal("poll loop died with the connect context")
	}
	if !c.Connected() {
		t.Fatal("channel reports disconnected while polling")
	}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	settled := polls.Load()
	time.Sleep(30 * time.Millisecond)
	if got := polls.Load(); got > settled+1 {
		t.Errorf("polling continued after Disconnect: %d -> %d", settled, got)
	}
}

func TestPollChannelReceiveOnly(t *testing.T) {
	c := NewPollChannel(scriptedStatus(true), nil)
	if err := c.Connect(context.Background(), "s1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	if err := c.Send(Event{Kind: KindUserMessage, Text: "hi"}); !errors.Is(err, ErrSendUnsupported) {
		t.Fatalf("expected ErrSendUnsupported, got %v", err)
	}
}
