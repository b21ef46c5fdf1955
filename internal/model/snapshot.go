package model

import "time"

// PostSnapshot is the wire shape of a post push. Pointer fields
// distinguish "absent from this push" (nil) from "present but empty",
// which is what the merge policy in the feed store keys off: absent
// fields never clobber locally known state.
type PostSnapshot struct {
	ID        string             `json:"id"`
	Content   *string            `json:"content"`
	Author    *User              `json:"author"`
	Images    *[]string          `json:"images"`
	Videos    *[]string          `json:"videos"`
	Likes     *[]string          `json:"likes"`
	Comments  *[]CommentSnapshot `json:"comments"`
	CreatedAt *time.Time         `json:"createdAt"`
	Privacy   *string            `json:"privacy"`

	IsShared     *bool         `json:"isShared"`
	OriginalPost *PostSnapshot `json:"originalPost"`
}

// CommentSnapshot is the wire shape of one comment inside a post push.
// The backend flattens the forest: replies arrive as siblings carrying
// a ParentID, not as nested arrays.
type CommentSnapshot struct {
	ID        string     `json:"id"`
	ParentID  string     `json:"parentId"`
	Author    *User      `json:"author"`
	Content   string     `json:"content"`
	CreatedAt *time.Time `json:"createdAt"`
	ClientKey string     `json:"clientKey"`

	// Some backend versions still nest replies; they are folded into
	// the flat list during merge.
	Replies []CommentSnapshot `json:"replies"`
}
