package hub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type mockPeer struct {
	id     string
	mu     sync.Mutex
	closed bool
}

func (p *mockPeer) ID() string               { return p.id }
func (p *mockPeer) Send(v interface{}) error { return nil }
func (p *mockPeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *mockPeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestHub_StartStop(t *testing.T) {
	hub := NewHub(time.Minute)
	ctx := context.Background()

	if err := hub.Start(ctx); err != nil {
		t.Errorf("Expected no error starting hub, got %v", err)
	}
	if err := hub.Start(ctx); err != ErrHubAlreadyRunning {
		t.Errorf("Expected ErrHubAlreadyRunning, got %v", err)
	}
	if err := hub.Stop(); err != nil {
		t.Errorf("Expected no error stopping hub, got %v", err)
	}
	if err := hub.Stop(); err != ErrHubNotRunning {
		t.Errorf("Expected ErrHubNotRunning, got %v", err)
	}
	if err := hub.Start(ctx); err != ErrHubStopped {
		t.Errorf("Expected ErrHubStopped on restart, got %v", err)
	}
}

func TestHub_TrackRequiresRunning(t *testing.T) {
	hub := NewHub(time.Minute)

	if err := hub.Track(&mockPeer{id: "a"}); err != ErrHubNotRunning {
		t.Errorf("Expected ErrHubNotRunning, got %v", err)
	}

	// Must not block when the hub is not running
	hub.MarkJoined("a")
	hub.Untrack("a")
	if hub.Pending() != 0 {
		t.Error("stopped hub reports no pending connections")
	}
}

func TestHub_ClosesIdleConnections(t *testing.T) {
	hub := NewHub(50 * time.Millisecond)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer hub.Stop()

	idle := &mockPeer{id: "idle"}
	joined := &mockPeer{id: "joined"}
	if err := hub.Track(idle); err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if err := hub.Track(joined); err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	hub.MarkJoined("joined")

	waitFor(t, idle.isClosed, "idle connection should be closed after the grace period")

	time.Sleep(100 * time.Millisecond)
	if joined.isClosed() {
		t.Error("joined connection must not be reaped")
	}
	if hub.Pending() != 0 {
		t.Errorf("expected no pending connections, got %d", hub.Pending())
	}
}

func TestHub_UntrackedConnectionNotReaped(t *testing.T) {
	hub := NewHub(30 * time.Millisecond)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer hub.Stop()

	peer := &mockPeer{id: "gone"}
	_ = hub.Track(peer)
	hub.Untrack("gone")

	time.Sleep(100 * time.Millisecond)
	if peer.isClosed() {
		t.Error("untracked connection should not be closed by the hub")
	}
}

func TestHub_ZeroGraceDisablesReaping(t *testing.T) {
	hub := NewHub(0)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer hub.Stop()

	peer := &mockPeer{id: "a"}
	if err := hub.Track(peer); err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if peer.isClosed() {
		t.Error("reaping is disabled with zero grace")
	}
	if hub.Pending() != 0 {
		t.Error("nothing is tracked with zero grace")
	}
}

func TestHub_ContextCancelStopsLoop(t *testing.T) {
	hub := NewHub(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	// Calls after the loop exits return instead of blocking
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.MarkJoined("x")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("MarkJoined blocked after context cancellation")
	}
	if err := hub.Stop(); err != nil {
		t.Errorf("Stop after cancel failed: %v", err)
	}
}

func TestHub_ConcurrentAccess(t *testing.T) {
	hub := NewHub(time.Minute)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer hub.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := &mockPeer{id: fmt.Sprintf("p%d", i)}
			for hub.Track(p) == ErrTrackChannelFull {
				time.Sleep(time.Millisecond)
			}
			hub.MarkJoined(p.ID())
		}(i)
	}
	wg.Wait()

	waitFor(t, func() bool { return hub.Pending() == 0 }, "all joined connections should leave the pending set")
}

func TestHub_JoinImmediatelyAfterTrackIsNotReaped(t *testing.T) {
	hub := NewHub(50 * time.Millisecond)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer hub.Stop()

	peers := make([]*mockPeer, 100)
	for i := range peers {
		peers[i] = &mockPeer{id: fmt.Sprintf("p%d", i)}
		if err := hub.Track(peers[i]); err != nil {
			t.Fatalf("track %s: %v", peers[i].id, err)
		}
		hub.MarkJoined(peers[i].id)
	}

	waitFor(t, func() bool { return hub.Pending() == 0 }, "joined connections should leave the pending set")

	// Several grace periods pass without any joined connection being closed
	time.Sleep(300 * time.Millisecond)
	for _, p := range peers {
		if p.isClosed() {
			t.Errorf("%s joined right after connecting and must not be reaped", p.id)
		}
	}
}
