package model

import "time"

// User is a denormalized user snapshot attached to posts, comments, and
// friend events. It is enrichment data: partial pushes may omit it.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Privacy values accepted by the backend.
const (
	PrivacyPublic  = "public"
	PrivacyFriends = "friends"
	PrivacyPrivate = "private"
)

// Post is the client's view of a feed post. Comments form a forest:
// every comment's ParentID is either empty (top-level) or references
// another comment of the same post.
type Post struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	Author    *User      `json:"author,omitempty"`
	Images    []string   `json:"images,omitempty"`
	Videos    []string   `json:"videos,omitempty"`
	Likes     []string   `json:"likes"` // user IDs, no duplicates
	Comments  []*Comment `json:"comments"`
	CreatedAt time.Time  `json:"createdAt"`
	Privacy   string     `json:"privacy,omitempty"`

	// Shared-post fields.
	IsShared     bool  `json:"isShared,omitempty"`
	OriginalPost *Post `json:"originalPost,omitempty"`
}

// Comment is a single node of a post's comment forest.
type Comment struct {
	ID        string     `json:"id"`
	PostID    string     `json:"postId"`
	ParentID  string     `json:"parentId,omitempty"` // empty for top-level
	Author    *User      `json:"author,omitempty"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	Replies   []*Comment `json:"replies,omitempty"`

	// ClientKey is the client-generated idempotency key attached to an
	// optimistic comment and echoed back by the server, so the temporary
	// local node can be correlated with its confirmed counterpart.
	ClientKey string `json:"clientKey,omitempty"`
}

// Message is a single private chat message.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	Read       bool      `json:"read"`
}

// Conversation is the message history with one friend.
type Conversation struct {
	FriendID string    `json:"friendId"`
	Friend   *User     `json:"friend,omitempty"`
	Messages []Message `json:"messages"`
}

// Friend request lifecycle states.
const (
	FriendRequestPending  = "pending"
	FriendRequestAccepted = "accepted"
	FriendRequestDeclined = "declined"
)

// FriendRequest is a pending or resolved friend request.
type FriendRequest struct {
	ID        string    `json:"id"`
	From      *User     `json:"from,omitempty"`
	FromID    string    `json:"fromId"`
	ToID      string    `json:"toId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
