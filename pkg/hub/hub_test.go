package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeConn blocks reads until closed and records writes.
type fakeConn struct {
	mu     sync.Mutex
	writes []Message
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (f *fakeConn) SetReadLimit(int64) {}
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(t int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("closed")
	default:
	}
	if t == websocket.TextMessage || t == websocket.BinaryMessage {
		mt := JSONMessage
		if t == websocket.BinaryMessage {
			mt = BinaryMessage
		}
		f.mu.Lock()
		f.writes = append(f.writes, Message{Type: mt, Data: data})
		f.mu.Unlock()
	}
	return nil
}

func (f *fakeConn) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.writes...)
}

func startHub(t *testing.T, opts ...Option) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	return h, cancel
}

func TestHub_Broadcast(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, cancel := startHub(t)

	conn := newFakeConn()
	c := NewClient(h, conn)
	require.NotNil(t, c)
	done := make(chan struct{})
	go func() { c.Run(); close(done) }()

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, h.BroadcastJSON(map[string]int{"n": 1}))
	h.BroadcastBinary([]byte{0xff, 0xd8})

	require.Eventually(t, func() bool { return len(conn.messages()) == 2 }, time.Second, time.Millisecond)
	msgs := conn.messages()
	assert.Equal(t, JSONMessage, msgs[0].Type)
	assert.JSONEq(t, `{"n":1}`, string(msgs[0].Data))
	assert.Equal(t, BinaryMessage, msgs[1].Type)

	conn.Close()
	<-done
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)

	cancel()
	<-h.Done()
}

func TestHub_Replay(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, cancel := startHub(t, WithReplay())
	require.NoError(t, h.BroadcastJSON("latest"))

	// Give Run a moment to record the message before anyone connects.
	time.Sleep(10 * time.Millisecond)

	conn := newFakeConn()
	c := NewClient(h, conn)
	require.NotNil(t, c)
	done := make(chan struct{})
	go func() { c.Run(); close(done) }()

	require.Eventually(t, func() bool { return len(conn.messages()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, `"latest"`, string(conn.messages()[0].Data))

	cancel()
	<-h.Done()
	conn.Close()
	<-done
}

func TestHub_StoppedRejectsClients(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, cancel := startHub(t)
	cancel()
	<-h.Done()

	assert.Nil(t, NewClient(h, newFakeConn()))
}

func TestHub_DropsSlowClient(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, cancel := startHub(t)
	defer func() {
		cancel()
		<-h.Done()
	}()

	// Registered but never pumped, so its buffer fills.
	c := NewClient(h, newFakeConn())
	require.NotNil(t, c)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	for i := 0; i < sendBuffer+1; i++ {
		h.Broadcast(NewBinaryMessage([]byte{byte(i)}))
	}
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)
}
