// Package memory provides an in-memory store implementation. It backs tests
// and single-node development; the sqlite store is the durable sibling.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/halodesk/support-platform/internal/model"
	"github.com/halodesk/support-platform/internal/store"
)

// New creates a fully wired in-memory store.
func New() *store.Store {
	s := &state{
		conversations: make(map[int64]*model.Conversation),
		messages:      make(map[int64]*model.Message),
		contacts:      make(map[int64]*model.ContactLog),
		users:         make(map[int64]*model.User),
		notifications: make(map[string]*model.Notification),
	}
	return &store.Store{
		Conversations: &conversationRepo{s},
		Messages:      &messageRepo{s},
		Contacts:      &contactRepo{s},
		Users:         &userRepo{s},
		Notifications: &notificationRepo{s},
	}
}

type state struct {
	mu sync.RWMutex

	nextConversationID int64
	nextMessageID      int64
	nextContactID      int64

	conversations map[int64]*model.Conversation
	messages      map[int64]*model.Message
	contacts      map[int64]*model.ContactLog
	users         map[int64]*model.User
	notifications map[string]*model.Notification
	recipients    []*model.NotificationRecipient
}

// SeedUser inserts an internal user; test and dev bootstrap only.
func SeedUser(s *store.Store, u *model.User) {
	repo := s.Users.(*userRepo)
	repo.mu.Lock()
	cp := *u
	repo.users[u.ID] = &cp
	repo.mu.Unlock()
}

type conversationRepo struct{ *state }

func (r *conversationRepo) Create(ctx context.Context, c *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextConversationID++
	c.ID = r.nextConversationID
	c.Version = 1
	cp := *c
	r.conversations[c.ID] = &cp
	return nil
}

func (r *conversationRepo) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *conversationRepo) Update(ctx context.Context, c *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conversations[c.ID]
	if !ok {
		return model.ErrNotFound
	}
	if cur.Version != c.Version {
		return model.ErrVersionConflict
	}
	c.Version++
	cp := *c
	r.conversations[c.ID] = &cp
	return nil
}

func (r *conversationRepo) List(ctx context.Context, f store.ConversationFilter) ([]*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Conversation
	for _, c := range r.conversations {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.AgentID != nil && (c.AssignedAgentID == nil || *c.AssignedAgentID != *f.AgentID) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *conversationRepo) FindActiveByContact(ctx context.Context, contactID int64) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *model.Conversation
	for _, c := range r.conversations {
		if c.ContactID != contactID || c.IsClosed() {
			continue
		}
		if latest == nil || c.ID > latest.ID {
			latest = c
		}
	}
	if latest == nil {
		return nil, model.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *conversationRepo) ListOpenBefore(ctx context.Context, cutoff time.Time) ([]*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Conversation
	for _, c := range r.conversations {
		if c.IsClosed() || !c.CreatedAt.Before(cutoff) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type messageRepo struct{ *state }

func (r *messageRepo) Create(ctx context.Context, m *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextMessageID++
	m.ID = r.nextMessageID
	cp := *m
	r.messages[m.ID] = &cp
	return nil
}

func (r *messageRepo) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *messageRepo) Update(ctx context.Context, m *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[m.ID]; !ok {
		return model.ErrNotFound
	}
	cp := *m
	r.messages[m.ID] = &cp
	return nil
}

func (r *messageRepo) ListByConversation(ctx context.Context, conversationID int64, limit int) ([]*model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Message
	for _, m := range r.messages {
		if m.ConversationID != conversationID {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *messageRepo) FindByExternalID(ctx context.Context, conversationID int64, externalID string) (*model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.messages {
		if m.ConversationID == conversationID && m.ExternalID != "" && m.ExternalID == externalID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (r *messageRepo) GetByExternalID(ctx context.Context, externalID string) (*model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.messages {
		if m.ExternalID != "" && m.ExternalID == externalID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (r *messageRepo) LastClientMessage(ctx context.Context, conversationID int64) (*model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *model.Message
	for _, m := range r.messages {
		if m.ConversationID != conversationID || m.SenderContactID == nil {
			continue
		}
		if latest == nil || m.ID > latest.ID {
			latest = m
		}
	}
	if latest == nil {
		return nil, model.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

type contactRepo struct{ *state }

func (r *contactRepo) Create(ctx context.Context, c *model.ContactLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.contacts {
		if existing.Phone == c.Phone {
			return model.ErrValidation
		}
	}
	r.nextContactID++
	c.ID = r.nextContactID
	cp := *c
	r.contacts[c.ID] = &cp
	return nil
}

func (r *contactRepo) GetByID(ctx context.Context, id int64) (*model.ContactLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contacts[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *contactRepo) GetByPhone(ctx context.Context, phone string) (*model.ContactLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.contacts {
		if c.Phone == phone {
			cp := *c
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

type userRepo struct{ *state }

func (r *userRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) ListByRole(ctx context.Context, role model.Role) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.User
	for _, u := range r.users {
		if u.Role == role {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type notificationRepo struct{ *state }

func (r *notificationRepo) Create(ctx context.Context, n *model.Notification, recipientIDs []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *n
	r.notifications[n.ID] = &cp
	for _, uid := range recipientIDs {
		r.recipients = append(r.recipients, &model.NotificationRecipient{
			NotificationID: n.ID,
			UserID:         uid,
		})
	}
	return nil
}

func (r *notificationRepo) ListForUser(ctx context.Context, userID int64, limit int) ([]*model.UserNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.UserNotification
	for _, rec := range r.recipients {
		if rec.UserID != userID {
			continue
		}
		n, ok := r.notifications[rec.NotificationID]
		if !ok {
			continue
		}
		out = append(out, &model.UserNotification{Notification: *n, ReadAt: rec.ReadAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *notificationRepo) MarkRead(ctx context.Context, notificationID string, userID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.recipients {
		if rec.NotificationID == notificationID && rec.UserID == userID {
			if rec.ReadAt == nil {
				t := at
				rec.ReadAt = &t
			}
			return nil
		}
	}
	return model.ErrNotFound
}
