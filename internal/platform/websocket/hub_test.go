package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newClient(id string, topics ...string) *Client {
	return &Client{ID: id, Topics: topics, Send: make(chan []byte, 4)}
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c1", TopicDedup)

	hub.Register(client)
	if hub.ClientCount() != 1 || hub.TopicCount(TopicDedup) != 1 {
		t.Fatalf("expected 1 client on %s, got %d/%d", TopicDedup, hub.ClientCount(), hub.TopicCount(TopicDedup))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount(TopicDedup) != 0 {
		t.Fatalf("expected no clients after unregister")
	}
	if _, ok := <-client.Send; ok {
		t.Error("expected Send to be closed")
	}

	// second unregister is a no-op
	hub.Unregister(client)
}

func TestHub_PublishToTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub := newClient("sub", TopicDedup)
	other := newClient("other", "elsewhere")
	hub.Register(sub)
	hub.Register(other)

	if err := hub.Publish(context.Background(), TopicDedup, "run.started", map[string]int{"clusters": 3}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-sub.Send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Type != "run.started" || ev.Topic != TopicDedup {
			t.Errorf("unexpected event %+v", ev)
		}
		if string(ev.Data) != `{"clusters":3}` {
			t.Errorf("unexpected data %s", ev.Data)
		}
	default:
		t.Fatal("subscriber received nothing")
	}

	select {
	case <-other.Send:
		t.Error("client on another topic must not receive the event")
	default:
	}
}

func TestHub_PublishDropsForSlowClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	slow := &Client{ID: "slow", Topics: []string{TopicDedup}, Send: make(chan []byte, 1)}
	hub.Register(slow)

	for i := 0; i < 3; i++ {
		if err := hub.Publish(context.Background(), TopicDedup, "cluster.done", i); err != nil {
			t.Fatal(err)
		}
	}
	if len(slow.Send) != 1 {
		t.Errorf("expected buffer to hold one event, got %d", len(slow.Send))
	}
}

func TestHub_PublishUnmarshalable(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	if err := hub.Publish(context.Background(), TopicDedup, "x", make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}

func TestHub_ProcessMessage(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c", TopicDedup)
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"audit"}})
	if hub.TopicCount("audit") != 1 || len(client.Topics) != 2 {
		t.Fatalf("expected subscription to audit, topics=%v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{TopicDedup}})
	if hub.TopicCount(TopicDedup) != 0 {
		t.Error("expected dedup unsubscribed")
	}
	if len(client.Topics) != 1 || client.Topics[0] != "audit" {
		t.Errorf("unexpected topics %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "bogus", Topics: []string{"x"}})
	if hub.TopicCount("x") != 0 {
		t.Error("unknown action must be ignored")
	}
}

func TestHub_ConcurrentPublishAndRegister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := newClient("c", TopicDedup)
			hub.Register(c)
			hub.Unregister(c)
		}()
		go func() {
			defer wg.Done()
			hub.Publish(context.Background(), TopicDedup, "cluster.done", nil)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Errorf("expected all clients gone, got %d", hub.ClientCount())
	}
}

func TestHandler_RequiresUpgrade(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()

	if err := NewHandler(NewHub(zerolog.Nop())).HandleConnect(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a plain HTTP request, got %d", rec.Code)
	}
}

func TestHandler_StreamsEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	e.GET("/events", NewHandler(hub).HandleConnect)

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/events"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount(TopicDedup) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount(TopicDedup) != 1 {
		t.Fatal("client was not subscribed to the default topic")
	}

	hub.Publish(context.Background(), TopicDedup, "cluster.done", map[string]string{"status": "merged"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != "cluster.done" {
		t.Errorf("expected cluster.done, got %s", ev.Type)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Error("expected client to be unregistered after disconnect")
	}
}
