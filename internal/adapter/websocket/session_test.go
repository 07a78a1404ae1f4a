package websocket

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/qso-map-service/internal/domain"
	"github.com/couchcryptid/qso-map-service/internal/hub"
	"github.com/couchcryptid/qso-map-service/internal/observability"
)

func testHub() *hub.Hub {
	return hub.New(hub.DefaultCapacity, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
}

func dial(t *testing.T, h *hub.Hub) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(NewHandler(h, slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return h.Subscribers() >= 1 }, 2*time.Second, 5*time.Millisecond)
	return conn, srv
}

func readContact(t *testing.T, conn *websocket.Conn) domain.EnrichedContact {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, typ)

	var c domain.EnrichedContact
	require.NoError(t, json.Unmarshal(data, &c))
	return c
}

func TestSession_StreamsContactsAsJSON(t *testing.T) {
	h := testHub()
	conn, _ := dial(t, h)

	want := domain.EnrichedContact{Call: "IS0GVH", Band: "20m", Latitude: 39.123456, Longitude: 9.654321}
	_, err := h.Publish(want)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"call":"IS0GVH","band":"20m","latitude":39.123456,"longitude":9.654321}`, string(data))
}

func TestSession_PreservesOrder(t *testing.T) {
	h := testHub()
	conn, _ := dial(t, h)

	calls := []string{"K1AAA", "K2BBB", "K3CCC"}
	for _, c := range calls {
		_, err := h.Publish(domain.EnrichedContact{Call: c, Band: "40m", Latitude: 1, Longitude: 1})
		require.NoError(t, err)
	}
	for _, c := range calls {
		assert.Equal(t, c, readContact(t, conn).Call)
	}
}

func TestSession_ClientCloseDetaches(t *testing.T) {
	h := testHub()
	conn, _ := dial(t, h)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	_ = conn.Close()

	assert.Eventually(t, func() bool { return h.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestSession_HubCloseEndsStream(t *testing.T) {
	h := testHub()
	conn, _ := dial(t, h)

	_, err := h.Publish(domain.EnrichedContact{Call: "K1AAA", Band: "40m"})
	require.NoError(t, err)
	h.Close()

	// Buffered contact first, then a close frame.
	assert.Equal(t, "K1AAA", readContact(t, conn).Call)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestSession_EachClientGetsItsOwnCopy(t *testing.T) {
	h := testHub()
	a, srv := dial(t, h)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	b, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer b.Close()
	require.Eventually(t, func() bool { return h.Subscribers() == 2 }, 2*time.Second, 5*time.Millisecond)

	_, err = h.Publish(domain.EnrichedContact{Call: "IS0GVH", Band: "20m", Latitude: 39.1, Longitude: 9.6})
	require.NoError(t, err)

	assert.Equal(t, "IS0GVH", readContact(t, a).Call)
	assert.Equal(t, "IS0GVH", readContact(t, b).Call)
}

func TestHandler_RejectsPlainHTTP(t *testing.T) {
	h := testHub()
	srv := httptest.NewServer(NewHandler(h, slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 400, resp.StatusCode)
	assert.Zero(t, h.Subscribers())
}
