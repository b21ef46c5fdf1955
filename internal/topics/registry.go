// Package topics implements the topic subscription registry.
//
// The registry tracks the logical subscriptions (per-post, per-user
// friend events, per-user messages) the application holds, each bound
// to a callback. Transport-level subscriptions are disposable: they die
// with the connection, and the registry re-creates them from its
// retained topic-to-callback map after every reconnect.
package topics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/driftlab/feedsync/internal/connection"
	"github.com/driftlab/feedsync/internal/model"
)

// Class partitions subscriptions by topic kind. At most one
// subscription exists per topic key per class.
type Class string

const (
	ClassPosts    Class = "posts"
	ClassFriends  Class = "friends"
	ClassMessages Class = "messages"
)

// Topic key constructors.

func PostTopic(postID string) string    { return string(ClassPosts) + "/" + postID }
func FriendTopic(userID string) string  { return string(ClassFriends) + "/" + userID }
func MessageTopic(userID string) string { return string(ClassMessages) + "/" + userID }

// classOf extracts the subscription class from a topic key.
func classOf(topic string) (Class, error) {
	prefix, _, ok := strings.Cut(topic, "/")
	if !ok {
		return "", fmt.Errorf("malformed topic key %q", topic)
	}

	switch Class(prefix) {
	case ClassPosts, ClassFriends, ClassMessages:
		return Class(prefix), nil
	}
	return "", fmt.Errorf("unknown topic class %q", prefix)
}

// Callback handles decoded push events for one topic. Callbacks run on
// the dispatch goroutine, so per-topic delivery order matches transport
// order.
type Callback func(model.Event)

// entry is one logical subscription. The handle is only valid for the
// connection generation it was issued on.
type entry struct {
	class  Class
	cb     Callback
	handle connection.Handle
}

// Registry is the topic subscription registry. It wires itself into the
// Manager's lifecycle hooks: resubscription after connect, subscription
// teardown on disconnect.
type Registry struct {
	mgr    *connection.Manager
	logger *slog.Logger

	resubTimeout time.Duration

	mu   sync.Mutex
	subs map[Class]map[string]*entry
}

// NewRegistry creates a Registry bound to the Manager's lifecycle.
func NewRegistry(mgr *connection.Manager, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		mgr:          mgr,
		logger:       logger,
		resubTimeout: 30 * time.Second,
		subs: map[Class]map[string]*entry{
			ClassPosts:    {},
			ClassFriends:  {},
			ClassMessages: {},
		},
	}

	mgr.SetOnConnected(r.resubscribeAll)
	mgr.SetOnDisconnect(r.dropHandles)

	return r
}

// Subscribe registers a callback for a topic. Subscribing twice to the
// same key is a no-op. When the channel is down, Connect is attempted
// first; on failure the subscription intent is retained and re-issued
// on the next successful connect, and the error is returned so the
// caller knows delivery has not started yet.
func (r *Registry) Subscribe(ctx context.Context, topic string, cb Callback) error {
	class, err := classOf(topic)
	if err != nil {
		return err
	}

	// The lock is held across the transport call so this cannot race
	// the resubscription pass: either this key gets its handle here, or
	// the pass runs afterwards and skips it as already current.
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[class][topic]; ok {
		return nil
	}
	e := &entry{class: class, cb: cb}
	r.subs[class][topic] = e

	if r.mgr.State() != connection.StateConnected {
		if err := r.mgr.Connect(ctx); err != nil {
			r.logger.Warn("subscribe deferred, channel unavailable",
				"topic", topic,
				"error", err,
			)
			return err
		}
	}

	handle, err := r.mgr.Subscribe(ctx, topic)
	if err != nil {
		r.logger.Warn("subscribe deferred", "topic", topic, "error", err)
		return err
	}
	e.handle = handle
	return nil
}

// Unsubscribe removes a topic's subscription. Unknown keys are a no-op.
// Transport teardown is best effort; its errors are swallowed.
func (r *Registry) Unsubscribe(ctx context.Context, topic string) {
	class, err := classOf(topic)
	if err != nil {
		return
	}

	r.mu.Lock()
	e, ok := r.subs[class][topic]
	if ok {
		delete(r.subs[class], topic)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	if err := r.mgr.Unsubscribe(ctx, e.handle); err != nil {
		r.logger.Debug("unsubscribe transport teardown failed",
			"topic", topic,
			"error", err,
		)
	}
}

// IsSubscribed reports whether a topic currently has a subscription.
func (r *Registry) IsSubscribed(topic string) bool {
	class, err := classOf(topic)
	if err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[class][topic]
	return ok
}

// Count returns the number of logical subscriptions across all classes.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, m := range r.subs {
		n += len(m)
	}
	return n
}

// Run dispatches pushed frames to topic callbacks until ctx is done or
// the frame channel closes.
func (r *Registry) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-r.mgr.Frames():
			if !ok {
				return
			}
			r.dispatch(frame)
		}
	}
}

// dispatch decodes one frame and delivers it to the callback registered
// for its exact topic key. Unparseable or unknown payloads are logged
// and dropped, never propagated.
func (r *Registry) dispatch(frame connection.Frame) {
	ev, err := model.DecodeEvent(frame.Data, frame.ReceivedAt)
	if err != nil {
		r.logger.Warn("dropping unparseable push", "error", err)
		return
	}
	if ev.Kind == model.EventUnknown {
		r.logger.Debug("dropping push of unknown kind", "topic", ev.Topic)
		return
	}

	class, err := classOf(ev.Topic)
	if err != nil {
		r.logger.Warn("dropping push with bad topic", "topic", ev.Topic)
		return
	}

	r.mu.Lock()
	e, ok := r.subs[class][ev.Topic]
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("push for unsubscribed topic", "topic", ev.Topic)
		return
	}

	e.cb(ev)
}

// resubscribeAll re-issues every retained subscription after a
// reconnect. Each class is processed independently: its live map is
// snapshotted and cleared, then each key is re-subscribed; a key whose
// re-subscribe fails gets its previous entry restored so the intent is
// not lost.
func (r *Registry) resubscribeAll() {
	ctx, cancel := context.WithTimeout(context.Background(), r.resubTimeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, class := range []Class{ClassPosts, ClassFriends, ClassMessages} {
		prev := r.subs[class]
		r.subs[class] = make(map[string]*entry, len(prev))

		for topic, e := range prev {
			// A Subscribe racing this connect already got its handle on
			// the live transport; leave it alone.
			if r.mgr.Current(e.handle) {
				r.subs[class][topic] = e
				continue
			}

			handle, err := r.mgr.Subscribe(ctx, topic)
			if err != nil {
				r.logger.Warn("resubscribe failed, retaining key",
					"topic", topic,
					"error", err,
				)
				r.subs[class][topic] = e
				continue
			}
			r.subs[class][topic] = &entry{class: class, cb: e.cb, handle: handle}
		}

		if n := len(prev); n > 0 {
			r.logger.Info("resubscribed class", "class", class, "topics", n)
		}
	}
}

// dropHandles discards transport handles on disconnect while keeping
// the topic-to-callback map for future resubscription.
func (r *Registry) dropHandles() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.subs {
		for _, e := range m {
			e.handle = connection.Handle{}
		}
	}
}
