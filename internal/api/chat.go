package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/driftlab/feedsync/internal/model"
)

// SendMessageRequest is the payload for sending a private message.
type SendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

// GetConversation fetches the message history with one friend.
func (c *Client) GetConversation(ctx context.Context, friendID string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.get(ctx, "/messages/"+url.PathEscape(friendID), nil, &conv); err != nil {
		return nil, fmt.Errorf("get conversation with %s: %w", friendID, err)
	}
	if conv.FriendID == "" {
		conv.FriendID = friendID
	}
	return &conv, nil
}

// SendMessage sends a private message and returns the server-confirmed
// message object.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*model.Message, error) {
	var msg model.Message
	if err := c.post(ctx, "/messages", req, &msg); err != nil {
		return nil, fmt.Errorf("send message to %s: %w", req.ReceiverID, err)
	}
	return &msg, nil
}

// MarkConversationRead marks all messages from the given friend as read.
func (c *Client) MarkConversationRead(ctx context.Context, friendID string) error {
	if err := c.post(ctx, "/messages/"+url.PathEscape(friendID)+"/read", nil, nil); err != nil {
		return fmt.Errorf("mark conversation %s read: %w", friendID, err)
	}
	return nil
}
