package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/groupchat/internal/chat"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// newHandlePair returns a server-side wsHandle and the client connection
// talking to it.
func newHandlePair(t *testing.T, opts HandleOptions) (*wsHandle, *websocket.Conn) {
	t.Helper()

	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	client, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = client.Close() })

	handle := newWSHandle(<-conns, opts, slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = handle.Close() })
	return handle, client
}

func defaultHandleOptions() HandleOptions {
	return HandleOptions{
		MaxMessageSize: 512,
		SendBuffer:     16,
		RateBurst:      100,
		RateInterval:   time.Second,
	}
}

func TestWSHandle_Receive_Text(t *testing.T) {
	req := require.New(t)
	handle, client := newHandlePair(t, defaultHandleOptions())

	req.NoError(client.WriteMessage(websocket.TextMessage, []byte("hello")))

	text, err := handle.Receive(context.Background())
	req.NoError(err)
	req.Equal("hello", text)
}

func TestWSHandle_Receive_Skips_Binary_Frames(t *testing.T) {
	req := require.New(t)
	handle, client := newHandlePair(t, defaultHandleOptions())

	req.NoError(client.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))
	req.NoError(client.WriteMessage(websocket.TextMessage, []byte("after binary")))

	text, err := handle.Receive(context.Background())
	req.NoError(err)
	req.Equal("after binary", text)
}

func TestWSHandle_Receive_Drops_Messages_Over_Rate_Limit(t *testing.T) {
	req := require.New(t)
	opts := defaultHandleOptions()
	opts.RateBurst = 1
	opts.RateInterval = time.Hour
	handle, client := newHandlePair(t, opts)

	req.NoError(client.WriteMessage(websocket.TextMessage, []byte("first")))
	req.NoError(client.WriteMessage(websocket.TextMessage, []byte("second")))

	text, err := handle.Receive(context.Background())
	req.NoError(err)
	req.Equal("first", text)

	// The second message is discarded, so the next Receive waits
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = handle.Receive(ctx)
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestWSHandle_Receive_Oversized_Message_Ends_Session(t *testing.T) {
	req := require.New(t)
	opts := defaultHandleOptions()
	opts.MaxMessageSize = 8
	handle, client := newHandlePair(t, opts)

	req.NoError(client.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 64))))

	_, err := handle.Receive(context.Background())
	req.ErrorIs(err, websocket.ErrReadLimit)
	req.NotErrorIs(err, chat.ErrDisconnected)
}

func TestWSHandle_Receive_Client_Close_Is_Disconnect(t *testing.T) {
	req := require.New(t)
	handle, client := newHandlePair(t, defaultHandleOptions())

	req.NoError(client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	_, err := handle.Receive(context.Background())
	req.ErrorIs(err, chat.ErrDisconnected)
}

func TestWSHandle_Send_Writes_One_Frame_Per_Message(t *testing.T) {
	req := require.New(t)
	handle, client := newHandlePair(t, defaultHandleOptions())

	req.NoError(handle.Send(context.Background(), "alice: line one\nline two"))
	req.NoError(handle.Send(context.Background(), "bob has joined the chat!"))

	req.NoError(client.SetReadDeadline(time.Now().Add(time.Second)))
	messageType, payload, err := client.ReadMessage()
	req.NoError(err)
	req.Equal(websocket.TextMessage, messageType)
	req.Equal("alice: line one\nline two", string(payload))

	_, payload, err = client.ReadMessage()
	req.NoError(err)
	req.Equal("bob has joined the chat!", string(payload))
}

func TestWSHandle_Send_Times_Out_When_Queue_Is_Full(t *testing.T) {
	req := require.New(t)
	// No write pump drains the unbuffered queue
	handle := &wsHandle{
		send:     make(chan []byte),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
		log:      slog.New(slog.DiscardHandler),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := handle.Send(ctx, "nobody is listening")
	req.ErrorIs(err, chat.ErrSendTimeout)
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestWSHandle_Send_After_Pump_Stopped_Is_Closed(t *testing.T) {
	handle := &wsHandle{
		send:     make(chan []byte),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
		log:      slog.New(slog.DiscardHandler),
	}
	close(handle.pumpDone)

	require.ErrorIs(t, handle.Send(context.Background(), "late"), chat.ErrHandleClosed)
}

func TestWSHandle_Close_Is_Idempotent_And_Stops_Sends(t *testing.T) {
	req := require.New(t)
	handle, client := newHandlePair(t, defaultHandleOptions())

	req.NoError(handle.Close())
	req.NoError(handle.Close())

	req.ErrorIs(handle.Send(context.Background(), "too late"), chat.ErrHandleClosed)

	// The client sees a normal close
	req.NoError(client.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := client.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}

func TestWSHandle_Receive_Honours_Context(t *testing.T) {
	handle, _ := newHandlePair(t, defaultHandleOptions())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := handle.Receive(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClassifyReadError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		disconnect bool
	}{
		{name: "normal closure", err: &websocket.CloseError{Code: websocket.CloseNormalClosure}, disconnect: true},
		{name: "going away", err: &websocket.CloseError{Code: websocket.CloseGoingAway}, disconnect: true},
		{name: "abnormal closure", err: &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, disconnect: true},
		{name: "eof", err: io.EOF, disconnect: true},
		{name: "closed connection", err: errors.New("read tcp: use of closed network connection"), disconnect: true},
		{name: "protocol error", err: &websocket.CloseError{Code: websocket.CloseProtocolError}, disconnect: false},
		{name: "read limit", err: websocket.ErrReadLimit, disconnect: false},
		{name: "other", err: errors.New("tls: bad record MAC"), disconnect: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyReadError(tt.err, 512)
			require.Equal(t, tt.disconnect, errors.Is(got, chat.ErrDisconnected))
		})
	}
}
