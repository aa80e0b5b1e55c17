package router

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sini-kannan/Collaborative-Drawing-App/internal/filestore"
	"github.com/sini-kannan/Collaborative-Drawing-App/internal/protocol"
	"github.com/sini-kannan/Collaborative-Drawing-App/internal/store"
	"github.com/sini-kannan/Collaborative-Drawing-App/internal/ws"
)

func setupTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()

	backend, err := filestore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open file store: %v", err)
	}
	st := store.New(backend, nil)

	hub := ws.NewHub(nil, ws.DefaultLimits)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := New(st, hub, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWs(hub, r, w, req)
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, st
}

func dial(t *testing.T, srv *httptest.Server, room string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?room=" + room
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()

	data, err := protocol.Encode(eventType, payload)
	if err != nil {
		t.Fatalf("Failed to encode %s: %v", eventType, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("Failed to send %s: %v", eventType, err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	frame, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("Failed to decode frame %s: %v", data, err)
	}
	return frame
}

// expectSilence fails if a frame arrives within the wait. The connection
// cannot be read again afterwards.
func expectSilence(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(wait))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Errorf("Expected no frame, got %s", data)
		return
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Errorf("Expected read timeout, got %v", err)
	}
}

func waitForHistory(t *testing.T, st *store.Store, room string, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if points, _ := st.LoadAll(context.Background(), room); len(points) == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Room %s never reached %d points", room, n)
}

func expectType(t *testing.T, frame protocol.Frame, eventType string) {
	t.Helper()
	if frame.Type != eventType {
		t.Fatalf("Expected %s frame, got %s (%s)", eventType, frame.Type, frame.Payload)
	}
}

func TestLateJoinerReceivesHistoryAndUndoResetsBoth(t *testing.T) {
	srv, st := setupTestServer(t)

	a := dial(t, srv, "alpha")
	expectType(t, readFrame(t, a), protocol.TypeHistory)

	s1 := store.Point{X: 0, Y: 0, Type: store.PointStart, Color: "#000000", Width: 2, StrokeID: "s1"}
	s2 := store.Point{X: 5, Y: 5, Type: store.PointDraw, Color: "#000000", Width: 2, StrokeID: "s1"}
	send(t, a, protocol.TypeDraw, s1)
	send(t, a, protocol.TypeDraw, s2)
	waitForHistory(t, st, "alpha", 2)

	b := dial(t, srv, "alpha")
	history := readFrame(t, b)
	expectType(t, history, protocol.TypeHistory)
	if got := decodePoints(t, history); !reflect.DeepEqual(got, []store.Point{s1, s2}) {
		t.Fatalf("Expected history [s1 s2], got %+v", got)
	}

	send(t, a, protocol.TypeUndo, nil)

	for name, conn := range map[string]*websocket.Conn{"a": a, "b": b} {
		frame := readFrame(t, conn)
		expectType(t, frame, protocol.TypeResetWithHistory)
		if string(frame.Payload) != "[]" {
			t.Errorf("%s: expected resetWithHistory([]), got %s", name, frame.Payload)
		}
	}
}

func TestRoomsDoNotLeak(t *testing.T) {
	srv, _ := setupTestServer(t)

	a := dial(t, srv, "alpha")
	witness := dial(t, srv, "alpha")
	b := dial(t, srv, "beta")
	for _, conn := range []*websocket.Conn{a, witness, b} {
		expectType(t, readFrame(t, conn), protocol.TypeHistory)
	}

	send(t, a, protocol.TypeDraw, store.Point{X: 1, Y: 1, Type: store.PointStart, StrokeID: "s1"})
	expectType(t, readFrame(t, witness), protocol.TypeDraw)

	expectSilence(t, b, 200*time.Millisecond)
}

func TestNonArraySnapshotIsIgnored(t *testing.T) {
	srv, st := setupTestServer(t)

	a := dial(t, srv, "alpha")
	b := dial(t, srv, "alpha")
	expectType(t, readFrame(t, a), protocol.TypeHistory)
	expectType(t, readFrame(t, b), protocol.TypeHistory)

	existing := store.Point{X: 1, Y: 1, Type: store.PointStart, StrokeID: "s1"}
	send(t, a, protocol.TypeDraw, existing)
	expectType(t, readFrame(t, b), protocol.TypeDraw)

	send(t, a, protocol.TypeApplySnapshot, "nope")
	send(t, a, protocol.TypeApplySnapshot, map[string]int{"x": 1})
	// Frames from one connection are handled in order, so the cursor
	// arriving first proves both snapshots were dropped.
	send(t, a, protocol.TypeCursor, protocol.CursorIn{X: 1, Y: 2, Color: "#f00"})
	expectType(t, readFrame(t, b), protocol.TypeCursor)

	if history, _ := st.LoadAll(context.Background(), "alpha"); !reflect.DeepEqual(history, []store.Point{existing}) {
		t.Errorf("Expected history untouched, got %+v", history)
	}
	expectSilence(t, a, 200*time.Millisecond)
}

func TestDisconnectSendsCursorLeft(t *testing.T) {
	srv, _ := setupTestServer(t)

	a := dial(t, srv, "alpha")
	b := dial(t, srv, "alpha")
	expectType(t, readFrame(t, a), protocol.TypeHistory)
	expectType(t, readFrame(t, b), protocol.TypeHistory)

	send(t, a, protocol.TypeCursor, protocol.CursorIn{X: 3, Y: 4, Color: "#0f0"})
	cursorFrame := readFrame(t, b)
	expectType(t, cursorFrame, protocol.TypeCursor)
	var cursor protocol.CursorOut
	if err := json.Unmarshal(cursorFrame.Payload, &cursor); err != nil {
		t.Fatalf("Failed to decode cursor: %v", err)
	}
	if cursor.ID == "" || cursor.X != 3 || cursor.Y != 4 {
		t.Errorf("Unexpected cursor %+v", cursor)
	}

	a.Close()

	leftFrame := readFrame(t, b)
	expectType(t, leftFrame, protocol.TypeCursorLeft)
	var left protocol.CursorLeft
	if err := json.Unmarshal(leftFrame.Payload, &left); err != nil {
		t.Fatalf("Failed to decode cursor:left: %v", err)
	}
	if left.ID != cursor.ID {
		t.Errorf("Expected cursor:left for %q, got %q", cursor.ID, left.ID)
	}
}

func TestUnsafeRoomJoinsLobby(t *testing.T) {
	srv, _ := setupTestServer(t)

	a := dial(t, srv, "..%2Fetc")
	lobby := dial(t, srv, "lobby")
	expectType(t, readFrame(t, a), protocol.TypeHistory)
	expectType(t, readFrame(t, lobby), protocol.TypeHistory)

	send(t, a, protocol.TypeClear, nil)
	expectType(t, readFrame(t, lobby), protocol.TypeClear)
}
