package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil, func(origin string) bool { return origin == "https://club.example" })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("room"))
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, room string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?room=" + room
	return websocket.DefaultDialer.Dial(url, header)
}

func waitForClients(t *testing.T, hub *Hub, room string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients(room) != n {
		if time.Now().After(deadline) {
			t.Fatalf("Clients(%s) = %d, want %d", room, hub.Clients(room), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastsToRoom(t *testing.T) {
	hub, srv := startHub(t)

	conn, _, err := dial(t, srv, "t1", nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, "t1", 1)

	hub.Publish(Event{Type: WeatherChecked, TournamentID: "t2"})
	hub.Publish(Event{Type: BookingCreated, TournamentID: "t1", Payload: map[string]string{"match_id": "m1"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage error: %v", err)
	}
	var got struct {
		Type         string            `json:"type"`
		TournamentID string            `json:"tournament_id"`
		Payload      map[string]string `json:"payload"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if got.Type != BookingCreated || got.TournamentID != "t1" || got.Payload["match_id"] != "m1" {
		t.Errorf("event = %+v, want booking.created for t1", got)
	}
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub, srv := startHub(t)

	conn, _, err := dial(t, srv, "t1", nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	waitForClients(t, hub, "t1", 1)

	conn.Close()
	waitForClients(t, hub, "t1", 0)
}

func TestHubChecksOrigin(t *testing.T) {
	_, srv := startHub(t)

	t.Run("allowed origin", func(t *testing.T) {
		conn, _, err := dial(t, srv, "t1", http.Header{"Origin": {"https://club.example"}})
		if err != nil {
			t.Fatalf("Dial error: %v", err)
		}
		conn.Close()
	})

	t.Run("foreign origin", func(t *testing.T) {
		_, resp, err := dial(t, srv, "t1", http.Header{"Origin": {"https://elsewhere.example"}})
		if err == nil {
			t.Fatal("Dial succeeded, want handshake failure")
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Errorf("response = %v, want 403", resp)
		}
	})
}

func TestRecorder(t *testing.T) {
	var r Recorder
	var p Publisher = &r
	p.Publish(Event{Type: BookingCreated})
	p.Publish(Event{Type: BookingRelocated})
	got := r.Types()
	if len(got) != 2 || got[0] != BookingCreated || got[1] != BookingRelocated {
		t.Errorf("Types() = %v", got)
	}
}
