// Package feed holds the client's authoritative-enough view of posts
// and their comment forests, reconciling optimistic local mutations
// with snapshots pushed over the channel.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftlab/feedsync/internal/api"
	"github.com/driftlab/feedsync/internal/model"
	"github.com/driftlab/feedsync/internal/session"
)

// tempIDPrefix marks comment nodes created optimistically, before the
// server has assigned a real id.
const tempIDPrefix = "tmp-"

// commentNode is one comment in a post's arena. Parent/child links are
// id references into the arena, never embedded object graphs, so a node
// exists exactly once and reconciliation works by id.
type commentNode struct {
	id        string
	parentID  string
	author    *model.User
	content   string
	createdAt time.Time
	clientKey string
	children  []string

	// temp marks an optimistic node awaiting server confirmation.
	temp bool
}

// postState is the stored form of one post. Comments live in the arena
// map; rootOrder and each node's children preserve display order.
type postState struct {
	id        string
	content   string
	author    *model.User
	images    []string
	videos    []string
	likes     []string
	createdAt time.Time
	privacy   string

	isShared     bool
	originalPost *model.Post

	arena     map[string]*commentNode
	rootOrder []string
}

// Store is the feed reconciliation store. All access goes through its
// methods; reads return materialized copies, never internal state.
type Store struct {
	rest   *api.Client
	tokens session.TokenSource
	logger *slog.Logger

	mu    sync.RWMutex
	posts map[string]*postState
}

func NewStore(rest *api.Client, tokens session.TokenSource, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		rest:   rest,
		tokens: tokens,
		logger: logger.With("component", "feed"),
		posts:  make(map[string]*postState),
	}
}

// LoadFeed fetches the current feed over REST and seeds the store.
func (s *Store) LoadFeed(ctx context.Context, limit int) error {
	posts, err := s.rest.GetFeed(ctx, limit)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range posts {
		s.posts[p.ID] = stateFromPost(p)
	}
	return nil
}

// CreatePost creates a post over REST and inserts the server's copy.
func (s *Store) CreatePost(ctx context.Context, req api.CreatePostRequest) (*model.Post, error) {
	post, err := s.rest.CreatePost(ctx, req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.posts[post.ID] = stateFromPost(post)
	s.mu.Unlock()
	return post, nil
}

// LikePost issues the like call. The like set itself is not mutated
// locally: the push is the source of truth, so the visible count
// changes when the snapshot arrives, not when the call returns.
func (s *Store) LikePost(ctx context.Context, postID string) error {
	return s.rest.LikePost(ctx, postID)
}

// AddComment inserts an optimistic comment node immediately, then
// issues the server call. On failure the optimistic node is left in
// place for eventual reconciliation and the error is returned to the
// caller.
func (s *Store) AddComment(ctx context.Context, postID, content, parentID string) (*model.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("add comment: empty content")
	}

	user := s.tokens.CurrentUser()
	node := &commentNode{
		id:        tempIDPrefix + uuid.NewString(),
		parentID:  parentID,
		author:    &user,
		content:   content,
		createdAt: time.Now(),
		clientKey: uuid.NewString(),
		temp:      true,
	}

	s.mu.Lock()
	ps, ok := s.posts[postID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("add comment: unknown post %s", postID)
	}
	if err := ps.insert(node); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("add comment: %w", err)
	}
	s.mu.Unlock()

	confirmed, err := s.rest.CreateComment(ctx, postID, api.CreateCommentRequest{
		Content:   content,
		ParentID:  parentID,
		ClientKey: node.clientKey,
	})
	if err != nil {
		s.logger.Warn("comment not confirmed, keeping optimistic node",
			"post_id", postID, "error", err)
		return nil, err
	}

	s.confirmComment(postID, node.clientKey, confirmed)
	return confirmed, nil
}

// confirmComment promotes the optimistic node to the server-assigned
// id, if the node is still present. A push may already have reconciled
// it; then this is a no-op.
func (s *Store) confirmComment(postID, clientKey string, confirmed *model.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.posts[postID]
	if !ok {
		return
	}
	node := ps.findByClientKey(clientKey)
	if node == nil || !node.temp {
		return
	}
	ps.rename(node, confirmed.ID)
	node.temp = false
	if !confirmed.CreatedAt.IsZero() {
		node.createdAt = confirmed.CreatedAt
	}
	if confirmed.Author != nil {
		node.author = confirmed.Author
	}
}

// MergeSnapshot applies a pushed post snapshot. Fields present in the
// snapshot overwrite stored state; absent fields keep their stored
// value. Comment author enrichment survives a null in the push by
// correlating on comment id. Applying the same snapshot twice leaves
// the store unchanged.
func (s *Store) MergeSnapshot(snap *model.PostSnapshot) {
	if snap == nil || snap.ID == "" {
		s.logger.Warn("dropping post snapshot without id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.posts[snap.ID]
	if !ok {
		ps = &postState{id: snap.ID, arena: make(map[string]*commentNode)}
		s.posts[snap.ID] = ps
	}

	if snap.Content != nil {
		ps.content = *snap.Content
	}
	if snap.Author != nil {
		ps.author = snap.Author
	}
	if snap.Images != nil {
		ps.images = append([]string(nil), (*snap.Images)...)
	}
	if snap.Videos != nil {
		ps.videos = append([]string(nil), (*snap.Videos)...)
	}
	if snap.Likes != nil {
		ps.likes = dedupe(*snap.Likes)
	}
	if snap.CreatedAt != nil {
		ps.createdAt = *snap.CreatedAt
	}
	if snap.Privacy != nil {
		ps.privacy = *snap.Privacy
	}
	if snap.IsShared != nil {
		ps.isShared = *snap.IsShared
	}
	if snap.OriginalPost != nil {
		ps.originalPost = materializeSnapshot(snap.OriginalPost)
	}
	if snap.Comments != nil {
		ps.mergeComments(flatten(*snap.Comments, ""))
	}
}

// HandleEvent is the registry callback for post topics.
func (s *Store) HandleEvent(ev model.Event) {
	if ev.Kind != model.EventPostUpdated || ev.Post == nil {
		s.logger.Debug("ignoring non-post event", "kind", ev.Kind, "topic", ev.Topic)
		return
	}
	s.MergeSnapshot(ev.Post)
}

// Post returns a materialized copy of one post.
func (s *Store) Post(id string) (*model.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ps, ok := s.posts[id]
	if !ok {
		return nil, false
	}
	return ps.materialize(), true
}

// Posts returns materialized copies of every stored post.
func (s *Store) Posts() []*model.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Post, 0, len(s.posts))
	for _, ps := range s.posts {
		out = append(out, ps.materialize())
	}
	return out
}

// Len reports the number of stored posts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

// mergeComments reconciles the incoming flat comment list against the
// arena. Confirmed nodes are rebuilt from the incoming list in its
// order; an existing node with the same id donates its author when the
// incoming one carries none. Optimistic nodes are matched by client
// key, then by author+content; unmatched optimistic nodes are kept.
func (ps *postState) mergeComments(incoming []model.CommentSnapshot) {
	old := ps.arena
	oldOrder := ps.orderedNodes()

	ps.arena = make(map[string]*commentNode, len(incoming))
	ps.rootOrder = nil

	claimed := make(map[string]bool)
	var order []string

	for _, cs := range incoming {
		node := &commentNode{
			id:        cs.ID,
			parentID:  cs.ParentID,
			author:    cs.Author,
			content:   cs.Content,
			clientKey: cs.ClientKey,
		}
		if cs.CreatedAt != nil {
			node.createdAt = *cs.CreatedAt
		}

		if prev, ok := old[cs.ID]; ok {
			claimed[prev.id] = true
			if node.author == nil {
				node.author = prev.author
			}
			if node.createdAt.IsZero() {
				node.createdAt = prev.createdAt
			}
		} else if tmp := matchOptimistic(oldOrder, claimed, &cs); tmp != nil {
			claimed[tmp.id] = true
			if node.author == nil {
				node.author = tmp.author
			}
			if node.createdAt.IsZero() {
				node.createdAt = tmp.createdAt
			}
		}

		// A duplicate id in the push wins last, matching full-list
		// replacement semantics.
		if _, dup := ps.arena[node.id]; !dup {
			order = append(order, node.id)
		}
		ps.arena[node.id] = node
	}

	// Unconfirmed optimistic nodes survive the replacement so the UI
	// does not lose a pending comment to an older snapshot.
	for _, prev := range oldOrder {
		if !prev.temp || claimed[prev.id] {
			continue
		}
		keep := *prev
		keep.children = nil
		ps.arena[keep.id] = &keep
		order = append(order, keep.id)
	}

	// Link in a second pass: the flat list does not promise parents
	// before children. Orphans whose parent vanished are dropped.
	for _, id := range order {
		node := ps.arena[id]
		if node.parentID != "" {
			if _, ok := ps.arena[node.parentID]; !ok {
				delete(ps.arena, id)
				continue
			}
		}
		ps.link(node)
	}
}

// matchOptimistic finds the optimistic node the incoming confirmed
// comment corresponds to: by echoed client key first, then by same
// author and content under the same parent.
func matchOptimistic(nodes []*commentNode, claimed map[string]bool, cs *model.CommentSnapshot) *commentNode {
	if cs.ClientKey != "" {
		for _, n := range nodes {
			if n.temp && !claimed[n.id] && n.clientKey == cs.ClientKey {
				return n
			}
		}
	}
	if cs.Author == nil {
		return nil
	}
	for _, n := range nodes {
		if n.temp && !claimed[n.id] &&
			n.parentID == cs.ParentID &&
			n.content == cs.Content &&
			n.author != nil && n.author.ID == cs.Author.ID {
			return n
		}
	}
	return nil
}

func (ps *postState) insert(node *commentNode) error {
	if node.parentID != "" {
		if _, ok := ps.arena[node.parentID]; !ok {
			return fmt.Errorf("unknown parent comment %s", node.parentID)
		}
	}
	ps.arena[node.id] = node
	ps.link(node)
	return nil
}

func (ps *postState) link(node *commentNode) {
	if node.parentID == "" {
		ps.rootOrder = append(ps.rootOrder, node.id)
		return
	}
	parent := ps.arena[node.parentID]
	parent.children = append(parent.children, node.id)
}

// rename moves a node to a new arena key, fixing the link that points
// at it and the parent references of its children.
func (ps *postState) rename(node *commentNode, newID string) {
	oldID := node.id
	if oldID == newID {
		return
	}
	delete(ps.arena, oldID)
	node.id = newID
	ps.arena[newID] = node

	if node.parentID == "" {
		replace(ps.rootOrder, oldID, newID)
	} else if parent, ok := ps.arena[node.parentID]; ok {
		replace(parent.children, oldID, newID)
	}
	for _, child := range node.children {
		if c, ok := ps.arena[child]; ok {
			c.parentID = newID
		}
	}
}

func (ps *postState) findByClientKey(key string) *commentNode {
	for _, n := range ps.arena {
		if n.clientKey == key {
			return n
		}
	}
	return nil
}

// orderedNodes walks the arena in display order.
func (ps *postState) orderedNodes() []*commentNode {
	var out []*commentNode
	var walk func(ids []string)
	walk = func(ids []string) {
		for _, id := range ids {
			n, ok := ps.arena[id]
			if !ok {
				continue
			}
			out = append(out, n)
			walk(n.children)
		}
	}
	walk(ps.rootOrder)
	return out
}

// materialize builds an independent model.Post with the comment forest
// rebuilt as nested Replies.
func (ps *postState) materialize() *model.Post {
	post := &model.Post{
		ID:        ps.id,
		Content:   ps.content,
		Author:    ps.author,
		Images:    append([]string(nil), ps.images...),
		Videos:    append([]string(nil), ps.videos...),
		Likes:     append([]string(nil), ps.likes...),
		CreatedAt: ps.createdAt,
		Privacy:   ps.privacy,
		IsShared:  ps.isShared,
	}
	if ps.originalPost != nil {
		cp := *ps.originalPost
		post.OriginalPost = &cp
	}

	var build func(ids []string) []*model.Comment
	build = func(ids []string) []*model.Comment {
		var out []*model.Comment
		for _, id := range ids {
			n, ok := ps.arena[id]
			if !ok {
				continue
			}
			out = append(out, &model.Comment{
				ID:        n.id,
				PostID:    ps.id,
				ParentID:  n.parentID,
				Author:    n.author,
				Content:   n.content,
				CreatedAt: n.createdAt,
				ClientKey: n.clientKey,
				Replies:   build(n.children),
			})
		}
		return out
	}
	post.Comments = build(ps.rootOrder)
	if post.Comments == nil {
		post.Comments = []*model.Comment{}
	}
	return post
}

func stateFromPost(p *model.Post) *postState {
	ps := &postState{
		id:        p.ID,
		content:   p.Content,
		author:    p.Author,
		images:    append([]string(nil), p.Images...),
		videos:    append([]string(nil), p.Videos...),
		likes:     dedupe(p.Likes),
		createdAt: p.CreatedAt,
		privacy:   p.Privacy,
		isShared:  p.IsShared,
		arena:     make(map[string]*commentNode),
	}
	if p.OriginalPost != nil {
		cp := *p.OriginalPost
		ps.originalPost = &cp
	}

	var add func(comments []*model.Comment, parentID string)
	add = func(comments []*model.Comment, parentID string) {
		for _, c := range comments {
			node := &commentNode{
				id:        c.ID,
				parentID:  parentID,
				author:    c.Author,
				content:   c.Content,
				createdAt: c.CreatedAt,
				clientKey: c.ClientKey,
			}
			ps.arena[node.id] = node
			ps.link(node)
			add(c.Replies, c.ID)
		}
	}
	add(p.Comments, "")
	return ps
}

// materializeSnapshot converts a nested snapshot (shared original post)
// into a plain post. Shared originals are display-only; their comments
// are not merged into an arena.
func materializeSnapshot(snap *model.PostSnapshot) *model.Post {
	p := &model.Post{ID: snap.ID}
	if snap.Content != nil {
		p.Content = *snap.Content
	}
	if snap.Author != nil {
		p.Author = snap.Author
	}
	if snap.Images != nil {
		p.Images = append([]string(nil), (*snap.Images)...)
	}
	if snap.Videos != nil {
		p.Videos = append([]string(nil), (*snap.Videos)...)
	}
	if snap.Likes != nil {
		p.Likes = dedupe(*snap.Likes)
	}
	if snap.CreatedAt != nil {
		p.CreatedAt = *snap.CreatedAt
	}
	if snap.Privacy != nil {
		p.Privacy = *snap.Privacy
	}
	return p
}

// flatten folds any nested reply arrays into one flat list carrying
// parent ids, the shape the merge works on.
func flatten(comments []model.CommentSnapshot, parentID string) []model.CommentSnapshot {
	var out []model.CommentSnapshot
	for _, c := range comments {
		if c.ParentID == "" {
			c.ParentID = parentID
		}
		replies := c.Replies
		c.Replies = nil
		out = append(out, c)
		if len(replies) > 0 {
			out = append(out, flatten(replies, c.ID)...)
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func replace(ids []string, oldID, newID string) {
	for i, v := range ids {
		if v == oldID {
			ids[i] = newID
			return
		}
	}
}
