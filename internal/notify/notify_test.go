package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.events = append(p.events, e)
	return p.err
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{}
	broken := &recordingPublisher{err: errors.New("broker down")}
	multi := Multi{broken, ok, Nop{}}

	err := multi.Publish(context.Background(), Event{Subject: SubjectOrderStatus, Type: EventOrderStatusChanged})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, ok.events, 1, "a failing publisher must not starve the others")
	assert.Len(t, broken.events, 1)
}

type fakeConn struct {
	subject string
	data    []byte
	drained bool
}

func (c *fakeConn) Publish(subj string, data []byte) error {
	c.subject, c.data = subj, data
	return nil
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func TestNATSPublisher_Publish(t *testing.T) {
	conn := &fakeConn{}
	p := &NATSPublisher{conn: conn}
	orderID := uuid.Must(uuid.NewV4())

	err := p.Publish(context.Background(), Event{
		Subject:    SubjectOrderPayment,
		Type:       EventOrderPaid,
		OrderID:    orderID,
		Status:     "completed",
		OccurredAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, SubjectOrderPayment, conn.subject)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(conn.data, &decoded))
	assert.Equal(t, "order.paid", decoded["event_type"])
	assert.Equal(t, orderID.String(), decoded["order_id"])
	assert.Equal(t, "completed", decoded["status"])

	require.NoError(t, p.Close())
	assert.True(t, conn.drained)
}

func dialHub(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_DeliversMatchingSubjects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	all := dialHub(t, srv, "")
	kitchen := dialHub(t, srv, "?subjects=orders.status")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	orderID := uuid.Must(uuid.NewV4())
	require.NoError(t, hub.Publish(ctx, Event{Subject: SubjectOrderPayment, Type: EventOrderPaid, OrderID: orderID}))
	require.NoError(t, hub.Publish(ctx, Event{Subject: SubjectOrderStatus, Type: EventOrderStatusChanged, OrderID: orderID, Status: "ready"}))

	read := func(conn *websocket.Conn) Event {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var e Event
		require.NoError(t, json.Unmarshal(data, &e))
		return e
	}

	assert.Equal(t, EventOrderPaid, read(all).Type)
	assert.Equal(t, EventOrderStatusChanged, read(all).Type)

	got := read(kitchen)
	assert.Equal(t, EventOrderStatusChanged, got.Type, "kitchen only subscribed to status changes")
	assert.Equal(t, "ready", got.Status)
}

func TestHub_ClosesClientsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dialHub(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-stopped

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.ClientCount())
}
