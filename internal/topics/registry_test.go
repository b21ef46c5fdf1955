package topics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlab/feedsync/internal/connection"
	"github.com/driftlab/feedsync/internal/model"
	"github.com/driftlab/feedsync/internal/session"
)

// channelServer is a mock push-channel backend: it answers subscribe
// commands, counts them per topic, and can push frames or drop the
// current transport.
type channelServer struct {
	t      *testing.T
	server *httptest.Server

	mu         sync.Mutex
	subCounts  map[string]int // topic → subscribe commands seen
	activeConn *websocket.Conn
}

func newChannelServer(t *testing.T) *channelServer {
	cs := &channelServer{t: t, subCounts: make(map[string]int)}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	cs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		cs.mu.Lock()
		cs.activeConn = conn
		cs.mu.Unlock()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var cmd struct {
				ID     int64  `json:"id"`
				Action string `json:"action"`
				Topic  string `json:"topic"`
			}
			if err := json.Unmarshal(msg, &cmd); err != nil {
				continue
			}

			typ := "subscribed"
			if cmd.Action == "subscribe" {
				cs.mu.Lock()
				cs.subCounts[cmd.Topic]++
				cs.mu.Unlock()
			} else {
				typ = "unsubscribed"
			}

			resp, _ := json.Marshal(map[string]any{"id": cmd.ID, "type": typ})
			conn.WriteMessage(websocket.TextMessage, resp)
		}
	}))

	return cs
}

func (cs *channelServer) url() string {
	return "ws" + strings.TrimPrefix(cs.server.URL, "http")
}

func (cs *channelServer) subscribeCount(topic string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.subCounts[topic]
}

func (cs *channelServer) push(raw string) {
	cs.mu.Lock()
	conn := cs.activeConn
	cs.mu.Unlock()
	require.NotNil(cs.t, conn, "no active transport to push on")
	require.NoError(cs.t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

// dropConnection kills the live transport to force a reconnect.
func (cs *channelServer) dropConnection() {
	cs.mu.Lock()
	conn := cs.activeConn
	cs.activeConn = nil
	cs.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func newTestRegistry(t *testing.T, cs *channelServer) (*Registry, *connection.Manager) {
	cfg := connection.DefaultManagerConfig()
	cfg.URL = cs.url()
	cfg.ReconnectBaseDelay = 20 * time.Millisecond
	cfg.ReconnectMaxDelay = 100 * time.Millisecond
	cfg.MaxAttempts = 5
	cfg.SubscribeTimeout = time.Second

	mgr := connection.NewManager(cfg, session.Static{AuthToken: "tok"}, nil)
	reg := NewRegistry(mgr, nil)
	t.Cleanup(mgr.Disconnect)
	return reg, mgr
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestTopicKeys(t *testing.T) {
	assert.Equal(t, "posts/p1", PostTopic("p1"))
	assert.Equal(t, "friends/u1", FriendTopic("u1"))
	assert.Equal(t, "messages/u1", MessageTopic("u1"))

	class, err := classOf("posts/p1")
	require.NoError(t, err)
	assert.Equal(t, ClassPosts, class)

	_, err = classOf("groups/x")
	assert.Error(t, err)
	_, err = classOf("nokey")
	assert.Error(t, err)
}

// Subscribing twice to the same key yields exactly one live subscription.
func TestSubscribeIdempotent(t *testing.T) {
	cs := newChannelServer(t)
	defer cs.server.Close()

	reg, _ := newTestRegistry(t, cs)
	ctx := context.Background()

	cb := func(model.Event) {}
	require.NoError(t, reg.Subscribe(ctx, PostTopic("p1"), cb))
	require.NoError(t, reg.Subscribe(ctx, PostTopic("p1"), cb))

	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, 1, cs.subscribeCount("posts/p1"), "second subscribe must be a no-op")
}

func TestSubscribeConnectsWhenDown(t *testing.T) {
	cs := newChannelServer(t)
	defer cs.server.Close()

	reg, mgr := newTestRegistry(t, cs)
	require.Equal(t, connection.StateDisconnected, mgr.State())

	require.NoError(t, reg.Subscribe(context.Background(), PostTopic("p1"), func(model.Event) {}))
	assert.Equal(t, connection.StateConnected, mgr.State())
}

func TestUnsubscribeUnknownIsNoOp(t *testing.T) {
	cs := newChannelServer(t)
	defer cs.server.Close()

	reg, _ := newTestRegistry(t, cs)

	// Must not panic or error on unknown or malformed keys.
	reg.Unsubscribe(context.Background(), PostTopic("nope"))
	reg.Unsubscribe(context.Background(), "garbage")
	assert.Equal(t, 0, reg.Count())
}

func TestUnsubscribeRemoves(t *testing.T) {
	cs := newChannelServer(t)
	defer cs.server.Close()

	reg, _ := newTestRegistry(t, cs)
	ctx := context.Background()

	require.NoError(t, reg.Subscribe(ctx, PostTopic("p1"), func(model.Event) {}))
	require.True(t, reg.IsSubscribed(PostTopic("p1")))

	reg.Unsubscribe(ctx, PostTopic("p1"))
	assert.False(t, reg.IsSubscribed(PostTopic("p1")))
	assert.Equal(t, 0, reg.Count())
}

func TestDispatchRoutesToExactTopic(t *testing.T) {
	cs := newChannelServer(t)
	defer cs.server.Close()

	reg, _ := newTestRegistry(t, cs)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	got := make(map[string]int)
	record := func(key string) Callback {
		return func(ev model.Event) {
			mu.Lock()
			got[key]++
			mu.Unlock()
		}
	}

	require.NoError(t, reg.Subscribe(ctx, PostTopic("p1"), record("p1")))
	require.NoError(t, reg.Subscribe(ctx, PostTopic("p2"), record("p2")))

	go reg.Run(ctx)

	cs.push(`{"topic":"posts/p1","type":"post_updated","payload":{"id":"p1"}}`)
	cs.push(`{"topic":"posts/p9","type":"post_updated","payload":{"id":"p9"}}`) // unsubscribed
	cs.push(`this is not json`)                                                // dropped
	cs.push(`{"topic":"posts/p1","type":"martian_event","payload":{}}`)        // unknown kind
	cs.push(`{"topic":"posts/p1","type":"post_updated","payload":{"id":"p1"}}`)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got["p1"] == 2
	}, "expected two deliveries for posts/p1")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, got["p1"])
	assert.Equal(t, 0, got["p2"], "posts/p2 must not receive posts/p1 events")
}

// After a forced disconnect/reconnect, every topic is subscribed again,
// once, with the same callback.
func TestResubscribeAfterReconnect(t *testing.T) {
	cs := newChannelServer(t)
	defer cs.server.Close()

	reg, mgr := newTestRegistry(t, cs)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	deliveries := 0

	require.NoError(t, reg.Subscribe(ctx, PostTopic("p1"), func(model.Event) {
		mu.Lock()
		deliveries++
		mu.Unlock()
	}))
	require.NoError(t, reg.Subscribe(ctx, FriendTopic("u1"), func(model.Event) {}))
	require.NoError(t, reg.Subscribe(ctx, MessageTopic("u1"), func(model.Event) {}))

	go reg.Run(ctx)

	cs.dropConnection()

	waitFor(t, func() bool {
		return mgr.State() == connection.StateConnected && cs.subscribeCount("posts/p1") >= 2
	}, "expected reconnect with resubscription")

	assert.Equal(t, 2, cs.subscribeCount("posts/p1"), "exactly one resubscribe per key")
	assert.Equal(t, 2, cs.subscribeCount("friends/u1"))
	assert.Equal(t, 2, cs.subscribeCount("messages/u1"))
	assert.Equal(t, 3, reg.Count(), "logical subscriptions survive reconnect without duplication")

	// Callback semantics survive: pushes still reach the same handler.
	cs.push(`{"topic":"posts/p1","type":"post_updated","payload":{"id":"p1"}}`)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return deliveries == 1
	}, "expected delivery after resubscription")
}

// Disconnect keeps the topic→callback map so a later connect restores
// every subscription.
func TestDisconnectRetainsIntent(t *testing.T) {
	cs := newChannelServer(t)
	defer cs.server.Close()

	reg, mgr := newTestRegistry(t, cs)
	ctx := context.Background()

	require.NoError(t, reg.Subscribe(ctx, PostTopic("p1"), func(model.Event) {}))
	mgr.Disconnect()

	assert.True(t, reg.IsSubscribed(PostTopic("p1")), "intent survives disconnect")

	require.NoError(t, mgr.Connect(ctx))
	waitFor(t, func() bool {
		return cs.subscribeCount("posts/p1") >= 2
	}, "expected resubscription after explicit reconnect")
}
