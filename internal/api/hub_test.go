package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membership-registry/internal/domain"
	"membership-registry/internal/rpc"
)

func (s *testServer) dial() *websocket.Conn {
	s.t.Helper()
	wsURL := "ws" + strings.TrimPrefix(s.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { conn.Close() })
	return conn
}

func wsCall(t *testing.T, conn *websocket.Conn, id int, method string, params ...any) rpc.Response {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}))
	var resp rpc.Response
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&resp))
	return resp
}

func subscribe(t *testing.T, conn *websocket.Conn, filter *rpc.SubscribeFilter) uint64 {
	t.Helper()
	var resp rpc.Response
	if filter == nil {
		resp = wsCall(t, conn, 1, rpc.MethodMembershipSubscribe)
	} else {
		resp = wsCall(t, conn, 1, rpc.MethodMembershipSubscribe, filter)
	}
	require.Nil(t, resp.Error)
	var id uint64
	require.NoError(t, json.Unmarshal(resp.Result, &id))
	return id
}

func readNotification(t *testing.T, conn *websocket.Conn) (uint64, *domain.MembershipEvent) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var n rpc.Notification
	require.NoError(t, conn.ReadJSON(&n))
	require.Equal(t, rpc.MethodMembershipNotification, n.Method)

	var payload rpc.EventNotification
	require.NoError(t, json.Unmarshal(n.Params.Result, &payload))
	require.NotNil(t, payload.Value)
	assert.Equal(t, payload.Value.Slot, payload.Context.Slot)
	return n.Params.Subscription, payload.Value
}

func waitForSubscriptions(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Subscriptions() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_SubscribeReceivesEvents(t *testing.T) {
	s := newTestServer(t, false)
	alice, bob := newWallet(t), newWallet(t)

	conn := s.dial()
	subID := subscribe(t, conn, nil)
	assert.NotZero(t, subID)

	s.bootstrap(alice, alice, bob)
	_, ev := readNotification(t, conn)
	assert.Equal(t, domain.EventAuthorityInitialized, ev.Type)

	s.mustSend(s.createIx(alice), alice)
	gotID, ev := readNotification(t, conn)
	assert.Equal(t, subID, gotID)
	assert.Equal(t, domain.EventMembershipCreated, ev.Type)
	assert.Equal(t, s.membershipOf(alice.pk), ev.Membership)

	s.mustSend(s.claimIx(alice, alice, bob), bob)
	_, ev = readNotification(t, conn)
	assert.Equal(t, domain.EventMembershipClaimed, ev.Type)
	assert.Equal(t, bob.pk, ev.Principal)
}

func TestHub_MembershipFilter(t *testing.T) {
	s := newTestServer(t, false)
	alice, bob := newWallet(t), newWallet(t)

	target := s.membershipOf(alice.pk)
	conn := s.dial()
	subscribe(t, conn, &rpc.SubscribeFilter{Membership: &target})

	// Initialization emits an event for no membership; it must be skipped.
	s.bootstrap(alice, alice, bob)
	s.mustSend(s.createIx(alice), alice)

	_, ev := readNotification(t, conn)
	assert.Equal(t, domain.EventMembershipCreated, ev.Type)
	assert.Equal(t, target, ev.Membership)
	assert.Equal(t, alice.pk, ev.Principal)
}

func TestHub_Unsubscribe(t *testing.T) {
	s := newTestServer(t, false)
	conn := s.dial()

	subID := subscribe(t, conn, nil)
	waitForSubscriptions(t, s.hub, 1)

	resp := wsCall(t, conn, 2, rpc.MethodMembershipUnsubscribe, subID)
	require.Nil(t, resp.Error)
	assert.Equal(t, "true", string(resp.Result))
	assert.Equal(t, 0, s.hub.Subscriptions())

	resp = wsCall(t, conn, 3, rpc.MethodMembershipUnsubscribe, subID)
	require.Nil(t, resp.Error)
	assert.Equal(t, "false", string(resp.Result))
}

func TestHub_UnsubscribeOtherConnection(t *testing.T) {
	s := newTestServer(t, false)
	owner := s.dial()
	other := s.dial()

	subID := subscribe(t, owner, nil)

	resp := wsCall(t, other, 2, rpc.MethodMembershipUnsubscribe, subID)
	require.Nil(t, resp.Error)
	assert.Equal(t, "false", string(resp.Result))
	assert.Equal(t, 1, s.hub.Subscriptions())
}

func TestHub_ProtocolErrors(t *testing.T) {
	s := newTestServer(t, false)
	conn := s.dial()

	resp := wsCall(t, conn, 1, "logsSubscribe")
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeMethodNotFound, resp.Error.Code)

	resp = wsCall(t, conn, 2, rpc.MethodMembershipUnsubscribe)
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeInvalidParams, resp.Error.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	var parseResp rpc.Response
	require.NoError(t, conn.ReadJSON(&parseResp))
	require.NotNil(t, parseResp.Error)
	assert.Equal(t, rpc.CodeParseError, parseResp.Error.Code)
}

func TestHub_DisconnectRemovesSubscriptions(t *testing.T) {
	s := newTestServer(t, false)
	conn := s.dial()

	subscribe(t, conn, nil)
	subscribe(t, conn, nil)
	waitForSubscriptions(t, s.hub, 2)

	require.NoError(t, conn.Close())
	waitForSubscriptions(t, s.hub, 0)
}

func TestHub_SubscribeAfterDrop(t *testing.T) {
	s := newTestServer(t, false)

	upgraded := make(chan *websocket.Conn, 1)
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var up websocket.Upgrader
		if ws, err := up.Upgrade(w, r, nil); err == nil {
			upgraded <- ws
		}
	}))
	defer peer.Close()
	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(peer.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	conn := &wsConn{ws: <-upgraded, send: make(chan []byte, 1), done: make(chan struct{})}

	// Never registered
	_, ok := s.hub.subscribe(conn, rpc.SubscribeFilter{})
	assert.False(t, ok)

	s.hub.mu.Lock()
	s.hub.conns[conn] = struct{}{}
	s.hub.mu.Unlock()

	id, ok := s.hub.subscribe(conn, rpc.SubscribeFilter{})
	require.True(t, ok)
	assert.NotZero(t, id)
	assert.Equal(t, 1, s.hub.Subscriptions())

	// A request still in flight when the connection drops must not
	// resurrect a subscription.
	s.hub.drop(conn)
	_, ok = s.hub.subscribe(conn, rpc.SubscribeFilter{})
	assert.False(t, ok)
	assert.Equal(t, 0, s.hub.Subscriptions())
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	s := newTestServer(t, false)
	conn := s.dial()
	subscribe(t, conn, nil)

	s.hub.Close()
	assert.Equal(t, 0, s.hub.Subscriptions())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
