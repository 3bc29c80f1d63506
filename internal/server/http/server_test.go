package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/CarletonURocketry/ground-station/internal/hub"
)

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	if opts.Hub == nil {
		opts.Hub = hub.New(hub.Options{})
	}
	s := New(opts)
	ts := httptest.NewServer(s.srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, err := http.Get(ts.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status = %v", body["status"])
	}
}

func TestTelemetrySnapshot(t *testing.T) {
	ts := newTestServer(t, Options{
		Snapshot: func() []byte { return []byte(`{"rocket":"Hyperion"}`) },
	})
	resp, err := http.Get(ts.URL + "/v1/telemetry")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["rocket"] != "Hyperion" {
		t.Fatalf("body = %v", body)
	}
}

func TestStreamDeliversSSEEvents(t *testing.T) {
	h := hub.New(hub.Options{
		Snapshot: func() []byte { return []byte(`{"rocket":"r","n":0}`) },
	})
	ts := newTestServer(t, Options{Hub: h})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/telemetry/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read event: %v", err)
			}
			if strings.HasPrefix(line, "data: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			}
		}
	}

	// First event is the join-time snapshot.
	if got := readEvent(); got != `{"rocket":"r","n":0}` {
		t.Fatalf("replay event = %s", got)
	}

	// Wait until the hub sees the subscriber, then publish.
	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.Publish([]byte(`{"rocket":"r","n":1}`))
	if got := readEvent(); got != `{"rocket":"r","n":1}` {
		t.Fatalf("live event = %s", got)
	}
}

func TestCommandForwarded(t *testing.T) {
	type captured struct {
		id   uint64
		text string
	}
	got := make(chan captured, 1)
	h := hub.New(hub.Options{
		Commands: hub.CommandSinkFunc(func(_ context.Context, id uint64, text string) error {
			got <- captured{id, text}
			return nil
		}),
	})
	ts := newTestServer(t, Options{Hub: h})

	resp, err := http.Post(ts.URL+"/v1/command", "application/json",
		strings.NewReader(`{"subscriber": 7, "command": "arm recovery"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	select {
	case c := <-got:
		if c.id != 7 || c.text != "arm recovery" {
			t.Fatalf("sink saw %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("command never reached sink")
	}
}

func TestCommandValidation(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, err := http.Post(ts.URL+"/v1/command", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty command status = %d", resp.StatusCode)
	}
}

func TestMissionsWithoutLibrary(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, err := http.Get(ts.URL + "/v1/missions")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, Options{})
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/v1/command", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
}
