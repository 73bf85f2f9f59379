// Package store holds the client-side canonical view of one board's
// content. It is an injectable state container with explicit
// subscribe/notify; tests instantiate independent stores per case.
package store

import (
	"sort"
	"sync"

	"retroboard/internal/models"
)

// SortCriterion selects the ordering of the sorted derived view.
type SortCriterion string

const (
	SortByVotes   SortCriterion = "votes"
	SortByCreated SortCriterion = "created"
)

// EnrichedPost is the derived projection of a post: the post itself, its
// task (if any) and the live vote count including optimistic deltas.
type EnrichedPost struct {
	models.Post
	Task          *models.Task `json:"task,omitempty"`
	LiveVoteCount int          `json:"live_vote_count"`
}

// Rollback exactly inverts the mutation that produced it. Calling it more
// than once is not supported; callers invoke it at most once, on failure of
// the paired remote operation.
type Rollback func()

// Store is the in-memory canonical view of posts, tasks and vote counts.
// Live vote counts are kept separate from the persisted value so optimistic
// deltas never overwrite authoritative state. All mutators are synchronous,
// return a Rollback, and notify subscribers; they never fail for a missing
// entity beyond being a no-op.
type Store struct {
	mu      sync.RWMutex
	posts   []*models.Post
	tasks   map[uint]*models.Task
	votes   map[uint]int
	subs    map[int]func()
	nextSub int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		tasks: make(map[uint]*models.Task),
		votes: make(map[uint]int),
		subs:  make(map[int]func()),
	}
}

// Subscribe registers fn to run after every mutation. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// Initialize replaces the entire store content with a board snapshot.
// Live vote counts are reset to the persisted tallies.
func (s *Store) Initialize(posts []*models.Post, tasks []*models.Task) {
	s.mu.Lock()
	s.posts = make([]*models.Post, 0, len(posts))
	s.votes = make(map[uint]int, len(posts))
	s.tasks = make(map[uint]*models.Task, len(tasks))
	for _, p := range posts {
		cp := clonePost(p)
		s.posts = append(s.posts, cp)
		s.votes[cp.ID] = cp.VoteCount
	}
	for _, t := range tasks {
		s.tasks[t.PostID] = cloneTask(t)
	}
	s.mu.Unlock()
	s.notify()
}

// AddPost appends a post. Adding an already-present ID replaces it, which
// makes re-delivered POST_ADD messages harmless.
func (s *Store) AddPost(p *models.Post) Rollback {
	s.mu.Lock()
	prev, idx := s.findLocked(p.ID)
	cp := clonePost(p)
	if prev != nil {
		s.posts[idx] = cp
	} else {
		s.posts = append(s.posts, cp)
	}
	prevCount, hadCount := s.votes[p.ID]
	s.votes[cp.ID] = cp.VoteCount
	s.mu.Unlock()
	s.notify()

	return func() {
		s.mu.Lock()
		if cur, i := s.findLocked(cp.ID); cur != nil {
			if prev != nil {
				s.posts[i] = prev
			} else {
				s.posts = append(s.posts[:i], s.posts[i+1:]...)
			}
		}
		if hadCount {
			s.votes[cp.ID] = prevCount
		} else {
			delete(s.votes, cp.ID)
		}
		s.mu.Unlock()
		s.notify()
	}
}

// RemovePost deletes a post along with its task and live count. The
// rollback restores all three at the original position.
func (s *Store) RemovePost(id uint) Rollback {
	s.mu.Lock()
	prev, idx := s.findLocked(id)
	if prev == nil {
		s.mu.Unlock()
		return func() {}
	}
	prevTask := s.tasks[id]
	prevCount := s.votes[id]
	s.posts = append(s.posts[:idx], s.posts[idx+1:]...)
	delete(s.tasks, id)
	delete(s.votes, id)
	s.mu.Unlock()
	s.notify()

	return func() {
		s.mu.Lock()
		if cur, _ := s.findLocked(id); cur == nil {
			i := idx
			if i > len(s.posts) {
				i = len(s.posts)
			}
			s.posts = append(s.posts[:i], append([]*models.Post{prev}, s.posts[i:]...)...)
			if prevTask != nil {
				s.tasks[id] = prevTask
			}
			s.votes[id] = prevCount
		}
		s.mu.Unlock()
		s.notify()
	}
}

// ReplacePost swaps a post wholesale, keeping the live vote count in sync
// with the replacement's persisted tally.
func (s *Store) ReplacePost(p *models.Post) Rollback {
	s.mu.Lock()
	prev, idx := s.findLocked(p.ID)
	if prev == nil {
		s.mu.Unlock()
		return func() {}
	}
	prevCount := s.votes[p.ID]
	s.posts[idx] = clonePost(p)
	s.votes[p.ID] = p.VoteCount
	s.mu.Unlock()
	s.notify()

	return func() {
		s.mu.Lock()
		if _, i := s.findLocked(p.ID); i >= 0 {
			s.posts[i] = prev
			s.votes[p.ID] = prevCount
		}
		s.mu.Unlock()
		s.notify()
	}
}

// SetContent updates a post's content. Missing post is a silent no-op.
func (s *Store) SetContent(id uint, content string) Rollback {
	return s.mutatePost(id, func(p *models.Post) func(*models.Post) {
		prev := p.Content
		p.Content = content
		return func(p *models.Post) { p.Content = prev }
	})
}

// SetType updates a post's category. Missing post is a silent no-op.
func (s *Store) SetType(id uint, t models.PostType) Rollback {
	return s.mutatePost(id, func(p *models.Post) func(*models.Post) {
		prev := p.Type
		p.Type = t
		return func(p *models.Post) { p.Type = prev }
	})
}

func (s *Store) mutatePost(id uint, mutate func(*models.Post) func(*models.Post)) Rollback {
	s.mu.Lock()
	p, _ := s.findLocked(id)
	if p == nil {
		s.mu.Unlock()
		return func() {}
	}
	undo := mutate(p)
	s.mu.Unlock()
	s.notify()

	return func() {
		s.mu.Lock()
		if cur, _ := s.findLocked(id); cur != nil {
			undo(cur)
		}
		s.mu.Unlock()
		s.notify()
	}
}

// IncrementVote bumps a post's live vote count by one.
func (s *Store) IncrementVote(id uint) Rollback {
	return s.adjustVote(id, +1)
}

// DecrementVote lowers a post's live vote count by one, saturating at
// zero: below zero it is a silent no-op.
func (s *Store) DecrementVote(id uint) Rollback {
	return s.adjustVote(id, -1)
}

func (s *Store) adjustVote(id uint, delta int) Rollback {
	s.mu.Lock()
	if p, _ := s.findLocked(id); p == nil {
		s.mu.Unlock()
		return func() {}
	}
	prev := s.votes[id]
	next := prev + delta
	if next < 0 {
		s.mu.Unlock()
		return func() {}
	}
	s.votes[id] = next
	s.mu.Unlock()
	s.notify()

	// Restore the captured tally rather than applying the opposite delta,
	// so a rollback cannot underflow a count another message changed since.
	return func() {
		s.mu.Lock()
		if p, _ := s.findLocked(id); p != nil {
			s.votes[id] = prev
		}
		s.mu.Unlock()
		s.notify()
	}
}

// SetVoteCount pins a post's live vote count to an authoritative value.
func (s *Store) SetVoteCount(id uint, count int) Rollback {
	s.mu.Lock()
	if p, _ := s.findLocked(id); p == nil {
		s.mu.Unlock()
		return func() {}
	}
	prev := s.votes[id]
	s.votes[id] = count
	s.mu.Unlock()
	s.notify()

	return func() {
		s.mu.Lock()
		if p, _ := s.findLocked(id); p != nil {
			s.votes[id] = prev
		}
		s.mu.Unlock()
		s.notify()
	}
}

// UpsertTask creates or replaces the task attached to a post.
func (s *Store) UpsertTask(t *models.Task) Rollback {
	s.mu.Lock()
	prev := s.tasks[t.PostID]
	s.tasks[t.PostID] = cloneTask(t)
	s.mu.Unlock()
	s.notify()

	return func() {
		s.mu.Lock()
		if prev != nil {
			s.tasks[t.PostID] = prev
		} else {
			delete(s.tasks, t.PostID)
		}
		s.mu.Unlock()
		s.notify()
	}
}

// AssignTask updates the assignee of a post's task, creating the task
// lazily if this client has not seen it yet.
func (s *Store) AssignTask(postID uint, userID *uint) Rollback {
	return s.mutateTask(postID, func(t *models.Task) func(*models.Task) {
		prev := t.UserID
		t.UserID = userID
		return func(t *models.Task) { t.UserID = prev }
	})
}

// SetTaskState updates the state of a post's task, creating the task
// lazily if this client has not seen it yet.
func (s *Store) SetTaskState(postID uint, state models.TaskState) Rollback {
	return s.mutateTask(postID, func(t *models.Task) func(*models.Task) {
		prev := t.State
		t.State = state
		return func(t *models.Task) { t.State = prev }
	})
}

func (s *Store) mutateTask(postID uint, mutate func(*models.Task) func(*models.Task)) Rollback {
	s.mu.Lock()
	post, _ := s.findLocked(postID)
	if post == nil {
		s.mu.Unlock()
		return func() {}
	}
	task, existed := s.tasks[postID]
	if !existed {
		task = &models.Task{
			PostID:  postID,
			BoardID: post.BoardID,
			State:   models.TaskStatePending,
		}
		s.tasks[postID] = task
	}
	undo := mutate(task)
	s.mu.Unlock()
	s.notify()

	return func() {
		s.mu.Lock()
		if cur, ok := s.tasks[postID]; ok {
			if existed {
				undo(cur)
			} else {
				delete(s.tasks, postID)
			}
		}
		s.mu.Unlock()
		s.notify()
	}
}

// ApplyMerge applies a committed merge: source posts (and their tasks and
// counts) are removed, the surviving post is replaced by the merged
// projection and its live count pinned to the recomputed unique tally.
// Re-applying the same merge is a no-op beyond rewriting identical state,
// since the sources are already absent.
func (s *Store) ApplyMerge(merged *models.Post, deletedPostIDs []uint, uniqueVoteCount int) Rollback {
	type removed struct {
		post  *models.Post
		index int
		task  *models.Task
		count int
	}

	s.mu.Lock()
	var gone []removed
	for _, id := range deletedPostIDs {
		p, idx := s.findLocked(id)
		if p == nil {
			continue
		}
		gone = append(gone, removed{post: p, index: idx, task: s.tasks[id], count: s.votes[id]})
		s.posts = append(s.posts[:idx], s.posts[idx+1:]...)
		delete(s.tasks, id)
		delete(s.votes, id)
	}

	prevTarget, targetIdx := s.findLocked(merged.ID)
	prevCount, hadCount := s.votes[merged.ID]
	cp := clonePost(merged)
	if prevTarget != nil {
		s.posts[targetIdx] = cp
	} else {
		s.posts = append(s.posts, cp)
	}
	s.votes[merged.ID] = uniqueVoteCount
	s.mu.Unlock()
	s.notify()

	return func() {
		s.mu.Lock()
		if prevTarget != nil {
			if _, i := s.findLocked(merged.ID); i >= 0 {
				s.posts[i] = prevTarget
			}
		} else if _, i := s.findLocked(merged.ID); i >= 0 {
			s.posts = append(s.posts[:i], s.posts[i+1:]...)
		}
		if hadCount {
			s.votes[merged.ID] = prevCount
		} else {
			delete(s.votes, merged.ID)
		}
		// Walk in reverse so earlier indexes are still valid on reinsert.
		for i := len(gone) - 1; i >= 0; i-- {
			g := gone[i]
			idx := g.index
			if idx > len(s.posts) {
				idx = len(s.posts)
			}
			s.posts = append(s.posts[:idx], append([]*models.Post{g.post}, s.posts[idx:]...)...)
			if g.task != nil {
				s.tasks[g.post.ID] = g.task
			}
			s.votes[g.post.ID] = g.count
		}
		s.mu.Unlock()
		s.notify()
	}
}

// Post returns a copy of the post with the given ID.
func (s *Store) Post(id uint) (models.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, _ := s.findLocked(id)
	if p == nil {
		return models.Post{}, false
	}
	return *clonePost(p), true
}

// Posts returns copies of all posts in canonical order.
func (s *Store) Posts() []models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, *clonePost(p))
	}
	return out
}

// Task returns a copy of the task attached to the given post.
func (s *Store) Task(postID uint) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[postID]
	if !ok {
		return models.Task{}, false
	}
	return *cloneTask(t), true
}

// VoteCount returns the live vote count for a post.
func (s *Store) VoteCount(id uint) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.votes[id]
}

// Enriched returns the post+task+live-count projection in canonical order.
func (s *Store) Enriched() []EnrichedPost {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enrichedLocked()
}

func (s *Store) enrichedLocked() []EnrichedPost {
	out := make([]EnrichedPost, 0, len(s.posts))
	for _, p := range s.posts {
		e := EnrichedPost{Post: *clonePost(p), LiveVoteCount: s.votes[p.ID]}
		if t, ok := s.tasks[p.ID]; ok {
			e.Task = cloneTask(t)
		}
		out = append(out, e)
	}
	return out
}

// SortedBy returns the enriched view ordered by the given criterion.
func (s *Store) SortedBy(criterion SortCriterion) []EnrichedPost {
	s.mu.RLock()
	out := s.enrichedLocked()
	s.mu.RUnlock()

	switch criterion {
	case SortByVotes:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].LiveVoteCount > out[j].LiveVoteCount
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	}
	return out
}

// GroupedByType returns the enriched view bucketed by category.
func (s *Store) GroupedByType() map[models.PostType][]EnrichedPost {
	s.mu.RLock()
	enriched := s.enrichedLocked()
	s.mu.RUnlock()

	out := make(map[models.PostType][]EnrichedPost)
	for _, e := range enriched {
		out[e.Type] = append(out[e.Type], e)
	}
	return out
}

func (s *Store) findLocked(id uint) (*models.Post, int) {
	for i, p := range s.posts {
		if p.ID == id {
			return p, i
		}
	}
	return nil, -1
}

func clonePost(p *models.Post) *models.Post {
	cp := *p
	if p.AuthorID != nil {
		author := *p.AuthorID
		cp.AuthorID = &author
	}
	return &cp
}

func cloneTask(t *models.Task) *models.Task {
	ct := *t
	if t.UserID != nil {
		user := *t.UserID
		ct.UserID = &user
	}
	return &ct
}
