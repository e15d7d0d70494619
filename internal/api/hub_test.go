package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/char5742/keyball-axis-clamper/internal/clamper"
)

func TestHub_RejectsClientsAfterRun(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	var handlers sync.WaitGroup
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.Add(1)
		defer handlers.Done()
		hub.ServeWS(w, r, clamper.Snapshot{})
	}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	// 以前の登録キューの容量を超える数で接続する
	for i := 0; i < 20; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err = conn.ReadMessage()
		conn.Close()
		if err == nil {
			t.Fatalf("client %d: expected connection to be closed by a stopped hub", i)
		}
		if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
			t.Errorf("client %d: expected going-away close, got %v", i, err)
		}
	}

	done := make(chan struct{})
	go func() {
		handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected all websocket handlers to return")
	}

	hub.mu.Lock()
	n := len(hub.clients)
	hub.mu.Unlock()
	if n != 0 {
		t.Errorf("expected no registered clients, got %d", n)
	}
}

func TestHub_PublishTransitionDoesNotBlock(t *testing.T) {
	hub := NewHub()
	// Runしていない状態でもキューが満杯になれば破棄される
	for i := 0; i < cap(hub.broadcast)+10; i++ {
		hub.PublishTransition(clamper.Transition{Seq: uint64(i + 1), From: clamper.Unlocked, To: clamper.LockedX})
	}
	if n := len(hub.broadcast); n != cap(hub.broadcast) {
		t.Errorf("expected a full queue, got %d", n)
	}
}
