package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/driftlab/feedsync/internal/model"
)

// CreatePostRequest is the payload for creating a post.
type CreatePostRequest struct {
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
	Videos  []string `json:"videos,omitempty"`
	Privacy string   `json:"privacy,omitempty"`

	// SharedPostID is set when re-sharing an existing post.
	SharedPostID string `json:"sharedPostId,omitempty"`
}

// CreateCommentRequest is the payload for commenting on a post.
type CreateCommentRequest struct {
	Content  string `json:"content"`
	ParentID string `json:"parentId,omitempty"`

	// ClientKey is the client-generated idempotency key echoed back on
	// the pushed comment so optimistic local nodes can be correlated.
	ClientKey string `json:"clientKey"`
}

// CreatePost creates a new post and returns the server's copy.
func (c *Client) CreatePost(ctx context.Context, req CreatePostRequest) (*model.Post, error) {
	var post model.Post
	if err := c.post(ctx, "/posts", req, &post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return &post, nil
}

// GetFeed fetches the newest posts for the current user's feed.
func (c *Client) GetFeed(ctx context.Context, limit int) ([]*model.Post, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", fmt.Sprint(limit))
	}

	var posts []*model.Post
	if err := c.get(ctx, "/posts", query, &posts); err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	return posts, nil
}

// LikePost toggles the current user's like on a post. The updated like
// set is delivered through the push channel, not the response.
func (c *Client) LikePost(ctx context.Context, postID string) error {
	if err := c.post(ctx, "/posts/"+url.PathEscape(postID)+"/like", nil, nil); err != nil {
		return fmt.Errorf("like post %s: %w", postID, err)
	}
	return nil
}

// CreateComment adds a comment to a post and returns the server's copy.
func (c *Client) CreateComment(ctx context.Context, postID string, req CreateCommentRequest) (*model.Comment, error) {
	var comment model.Comment
	if err := c.post(ctx, "/posts/"+url.PathEscape(postID)+"/comments", req, &comment); err != nil {
		return nil, fmt.Errorf("create comment on %s: %w", postID, err)
	}
	return &comment, nil
}
