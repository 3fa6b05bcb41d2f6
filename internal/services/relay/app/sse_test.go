package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/zuliantoe/TTSLiveChatRelay/internal/services/relay/upstream"
)

// readSSEEvent reads one named event and its data line from the stream,
// skipping comment heartbeats and blank separators.
func readSSEEvent(t *testing.T, reader *bufio.Reader) (string, Envelope) {
	t.Helper()
	var eventType string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" || strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var env Envelope
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &env); err != nil {
				t.Fatalf("decode data line %q: %v", line, err)
			}
			return eventType, env
		default:
			t.Fatalf("unexpected stream line %q", line)
		}
	}
}

func openSSE(t *testing.T, url string) (*http.Response, *bufio.Reader) {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	t.Cleanup(func() {
		_ = res.Body.Close()
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if got := res.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", got)
	}
	return res, bufio.NewReader(res.Body)
}

func TestSSEStreamsFilteredEnvelopes(t *testing.T) {
	connector := newFakeConnector()
	srv := newTestServer(t, connector)

	_, reader := openSSE(t, srv.URL+"/sse/alice?events=connected,chat")
	waitFor(t, "upstream connect", func() bool { return connector.connectCount("alice") == 1 })

	connector.emit("alice", upstream.Event{Type: upstream.TypeConnected, Payload: nil})
	connector.emit("alice", upstream.Event{Type: upstream.TypeGift, Payload: map[string]any{"giftId": float64(7)}})
	connector.emit("alice", upstream.Event{Type: upstream.TypeChat, Payload: map[string]any{"msgId": "m-1", "comment": "hello"}})

	eventType, env := readSSEEvent(t, reader)
	if eventType != upstream.TypeConnected || env.Type != upstream.TypeConnected {
		t.Fatalf("first event = %q envelope %+v", eventType, env)
	}
	if env.Room != "alice" {
		t.Fatalf("envelope room = %q, want %q", env.Room, "alice")
	}

	// The gift is filtered out, so the chat message is next on the wire.
	eventType, env = readSSEEvent(t, reader)
	if eventType != upstream.TypeChat || env.Payload["msgId"] != "m-1" {
		t.Fatalf("second event = %q envelope %+v", eventType, env)
	}
}

func TestSSECloseDisconnectsUpstreamAfterLastSubscriber(t *testing.T) {
	connector := newFakeConnector()
	srv := newTestServer(t, connector)

	res, _ := openSSE(t, srv.URL+"/sse/alice")
	waitFor(t, "upstream connect", func() bool { return connector.connectCount("alice") == 1 })
	conn := connector.connection("alice")

	_ = res.Body.Close()
	waitFor(t, "upstream disconnect", func() bool { return conn.disconnectCount() == 1 })
}

func TestSSERejectsBlankRoom(t *testing.T) {
	srv := newTestServer(t, newFakeConnector())

	res, err := http.Get(srv.URL + "/sse/%20")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}
