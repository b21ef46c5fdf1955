package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/driftlab/feedsync/internal/model"
)

// RespondFriendRequestRequest is the payload for accepting or declining
// a friend request.
type RespondFriendRequestRequest struct {
	Accept bool `json:"accept"`
}

// GetFriends fetches the current user's friend list.
func (c *Client) GetFriends(ctx context.Context) ([]model.User, error) {
	var friends []model.User
	if err := c.get(ctx, "/friends", nil, &friends); err != nil {
		return nil, fmt.Errorf("get friends: %w", err)
	}
	return friends, nil
}

// GetFriendRequests fetches pending friend requests addressed to the
// current user.
func (c *Client) GetFriendRequests(ctx context.Context) ([]model.FriendRequest, error) {
	var reqs []model.FriendRequest
	if err := c.get(ctx, "/friends/requests", nil, &reqs); err != nil {
		return nil, fmt.Errorf("get friend requests: %w", err)
	}
	return reqs, nil
}

// GetFriendSuggestions fetches friend suggestions for the current user.
func (c *Client) GetFriendSuggestions(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := c.get(ctx, "/friends/suggestions", nil, &users); err != nil {
		return nil, fmt.Errorf("get friend suggestions: %w", err)
	}
	return users, nil
}

// RespondFriendRequest accepts or declines a pending friend request.
func (c *Client) RespondFriendRequest(ctx context.Context, requestID string, accept bool) (*model.FriendRequest, error) {
	var fr model.FriendRequest
	payload := RespondFriendRequestRequest{Accept: accept}
	if err := c.post(ctx, "/friends/requests/"+url.PathEscape(requestID), payload, &fr); err != nil {
		return nil, fmt.Errorf("respond friend request %s: %w", requestID, err)
	}
	return &fr, nil
}
