// Package chat keeps the open conversation windows and push-driven
// unread counters for the current session.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/driftlab/feedsync/internal/api"
	"github.com/driftlab/feedsync/internal/model"
	"github.com/driftlab/feedsync/internal/session"
)

// ErrEmptyMessage is returned when a message body is blank; no server
// call is made in that case.
var ErrEmptyMessage = errors.New("chat: empty message")

// Window is one open conversation. Windows past the visible cap are
// hidden, not destroyed: their history is retained and reopening moves
// them back to the most-recent slot.
type Window struct {
	FriendID string
	Friend   *model.User
	Messages []model.Message
}

// Notification is a friend-event surfaced by the aggregator.
type Notification struct {
	Kind    model.EventKind
	Request model.FriendRequest
}

// Aggregator owns the session's chat windows, unread counters, and
// friend-event notification feed.
type Aggregator struct {
	rest       *api.Client
	tokens     session.TokenSource
	logger     *slog.Logger
	maxVisible int

	mu      sync.Mutex
	windows []*Window // ordered oldest → most recent
	unread  map[string]int

	notifications []Notification
}

func NewAggregator(rest *api.Client, tokens session.TokenSource, maxVisible int, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if maxVisible <= 0 {
		maxVisible = 3
	}
	return &Aggregator{
		rest:       rest,
		tokens:     tokens,
		logger:     logger.With("component", "chat"),
		maxVisible: maxVisible,
		unread:     make(map[string]int),
	}
}

// OpenChat opens the conversation with a friend. An already-open
// window is moved to the most-recent position without duplication;
// otherwise history is fetched over REST. Either way the conversation
// is marked read and its unread counter reset.
func (a *Aggregator) OpenChat(ctx context.Context, friendID string) (*Window, error) {
	a.mu.Lock()
	if w := a.findLocked(friendID); w != nil {
		a.moveToFrontLocked(friendID)
		a.unread[friendID] = 0
		a.mu.Unlock()

		if err := a.rest.MarkConversationRead(ctx, friendID); err != nil {
			a.logger.Warn("mark read failed", "friend_id", friendID, "error", err)
		}
		return w, nil
	}
	a.mu.Unlock()

	conv, err := a.rest.GetConversation(ctx, friendID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	// A push-driven open can race the fetch; keep the existing window.
	w := a.findLocked(friendID)
	if w == nil {
		w = &Window{
			FriendID: friendID,
			Friend:   conv.Friend,
			Messages: conv.Messages,
		}
		a.windows = append(a.windows, w)
	}
	a.moveToFrontLocked(friendID)
	a.unread[friendID] = 0
	a.mu.Unlock()

	if err := a.rest.MarkConversationRead(ctx, friendID); err != nil {
		a.logger.Warn("mark read failed", "friend_id", friendID, "error", err)
	}
	return w, nil
}

// CloseChat removes the window entirely.
func (a *Aggregator) CloseChat(friendID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, w := range a.windows {
		if w.FriendID == friendID {
			a.windows = append(a.windows[:i], a.windows[i+1:]...)
			return
		}
	}
}

// SendMessage sends a message to a friend. Blank content is rejected
// before any server call. The server-confirmed message, not a local
// placeholder, is appended to the friend's window if one is open.
func (a *Aggregator) SendMessage(ctx context.Context, receiverID, content string) (*model.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	msg, err := a.rest.SendMessage(ctx, api.SendMessageRequest{
		ReceiverID: receiverID,
		Content:    content,
	})
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if w := a.findLocked(receiverID); w != nil {
		w.appendMessage(*msg)
	}
	a.mu.Unlock()
	return msg, nil
}

// HandleEvent is the registry callback for message and friend topics.
func (a *Aggregator) HandleEvent(ev model.Event) {
	switch ev.Kind {
	case model.EventMessageReceived:
		if ev.Message != nil {
			a.handleMessage(*ev.Message)
		}
	case model.EventFriendRequestCreated, model.EventFriendRequestAccepted:
		if ev.FriendRequest != nil {
			a.mu.Lock()
			a.notifications = append(a.notifications, Notification{
				Kind:    ev.Kind,
				Request: *ev.FriendRequest,
			})
			a.mu.Unlock()
		}
	default:
		a.logger.Debug("ignoring event", "kind", ev.Kind, "topic", ev.Topic)
	}
}

// handleMessage applies one pushed message: bump the sender's unread
// counter and, if their window is open, append directly instead of
// waiting for a refresh.
func (a *Aggregator) handleMessage(msg model.Message) {
	if msg.ReceiverID != a.tokens.CurrentUser().ID {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.unread[msg.SenderID]++
	if w := a.findLocked(msg.SenderID); w != nil {
		w.appendMessage(msg)
	}
}

// Visible returns the windows currently shown, capped at the maximum,
// ordered oldest → most recent.
func (a *Aggregator) Visible() []*Window {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := len(a.windows) - a.maxVisible
	if start < 0 {
		start = 0
	}
	return append([]*Window(nil), a.windows[start:]...)
}

// OpenCount reports all open windows, hidden ones included.
func (a *Aggregator) OpenCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.windows)
}

// Unread reports the unread counter for one friend.
func (a *Aggregator) Unread(friendID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unread[friendID]
}

// Notifications drains and returns the pending friend-event feed.
func (a *Aggregator) Notifications() []Notification {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.notifications
	a.notifications = nil
	return out
}

func (a *Aggregator) findLocked(friendID string) *Window {
	for _, w := range a.windows {
		if w.FriendID == friendID {
			return w
		}
	}
	return nil
}

func (a *Aggregator) moveToFrontLocked(friendID string) {
	for i, w := range a.windows {
		if w.FriendID == friendID {
			a.windows = append(a.windows[:i], a.windows[i+1:]...)
			a.windows = append(a.windows, w)
			return
		}
	}
}

// appendMessage adds a message, skipping ids already present so a push
// and a REST response for the same message do not double up.
func (w *Window) appendMessage(msg model.Message) {
	for _, m := range w.Messages {
		if m.ID == msg.ID && msg.ID != "" {
			return
		}
	}
	w.Messages = append(w.Messages, msg)
}
