package chat_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/halodesk/support-platform/internal/bot"
	"github.com/halodesk/support-platform/internal/chat"
	"github.com/halodesk/support-platform/internal/clock"
	"github.com/halodesk/support-platform/internal/model"
	"github.com/halodesk/support-platform/internal/realtime"
	"github.com/halodesk/support-platform/internal/store"
	"github.com/halodesk/support-platform/internal/store/memory"
	"github.com/halodesk/support-platform/internal/whatsapp"
	"github.com/halodesk/support-platform/pkg/logger"
)

var testEpoch = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

const testBotUserID = int64(1)

// fakeChannel records outbound calls and can be told to fail.
type fakeChannel struct {
	mu       sync.Mutex
	texts    []string
	media    []string
	lists    []string
	readIDs  []string
	fail     bool
	nextID   int
	uploads  int
	mediaURL string
}

func (f *fakeChannel) next() (string, error) {
	if f.fail {
		return "", fmt.Errorf("%w: provider unavailable", model.ErrDelivery)
	}
	f.nextID++
	return fmt.Sprintf("wamid.%d", f.nextID), nil
}

func (f *fakeChannel) SendText(ctx context.Context, toPhone, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, err := f.next()
	if err == nil {
		f.texts = append(f.texts, text)
	}
	return id, err
}

func (f *fakeChannel) SendMedia(ctx context.Context, toPhone, mediaID, mimeType, caption string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, err := f.next()
	if err == nil {
		f.media = append(f.media, mediaID)
	}
	return id, err
}

func (f *fakeChannel) SendInteractiveList(ctx context.Context, toPhone, header string, options []whatsapp.ListOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, err := f.next()
	if err == nil {
		f.lists = append(f.lists, header)
	}
	return id, err
}

func (f *fakeChannel) UploadMedia(ctx context.Context, data []byte, mimeType, fileName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("%w: upload failed", model.ErrDelivery)
	}
	f.uploads++
	return fmt.Sprintf("media-%d", f.uploads), nil
}

func (f *fakeChannel) DownloadMediaURL(ctx context.Context, mediaID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("%w: media lookup failed", model.ErrDelivery)
	}
	if f.mediaURL != "" {
		return f.mediaURL, nil
	}
	return "https://media.example/" + mediaID, nil
}

func (f *fakeChannel) MarkRead(ctx context.Context, externalMessageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readIDs = append(f.readIDs, externalMessageID)
	return nil
}

func (f *fakeChannel) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// recorderFanout captures pushed events.
type recorderFanout struct {
	mu     sync.Mutex
	groups map[string][]realtime.Event
	users  map[int64][]realtime.Event
}

func newRecorderFanout() *recorderFanout {
	return &recorderFanout{
		groups: make(map[string][]realtime.Event),
		users:  make(map[int64][]realtime.Event),
	}
}

func (r *recorderFanout) PushToGroup(ctx context.Context, group string, ev realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[group] = append(r.groups[group], ev)
	return nil
}

func (r *recorderFanout) PushToUser(ctx context.Context, userID int64, ev realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[userID] = append(r.users[userID], ev)
	return nil
}

func (r *recorderFanout) userEvents(userID int64) []realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]realtime.Event(nil), r.users[userID]...)
}

func (r *recorderFanout) groupEvents(group string) []realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]realtime.Event(nil), r.groups[group]...)
}

// fixture bundles everything a dispatcher test needs.
type fixture struct {
	store      *store.Store
	clock      *clock.Fake
	channel    *fakeChannel
	fanout     *recorderFanout
	notifier   *chat.Notifier
	sm         *chat.StateMachine
	dispatcher *chat.Dispatcher
	seeded     int
}

func newFixture(engine bot.Engine) *fixture {
	st := memory.New()
	clk := clock.NewFake(testEpoch)
	ch := &fakeChannel{}
	fo := newRecorderFanout()
	log := logger.Nop()

	notifier := chat.NewNotifier(st.Notifications, st.Users, fo, clk, log)
	sm := chat.NewStateMachine(st.Conversations, fo, notifier, clk, log)
	d := chat.NewDispatcher(st, ch, fo, sm, engine, notifier, clk, testBotUserID, log)

	memory.SeedUser(st, &model.User{ID: testBotUserID, Name: "Bot", Role: model.RoleAgent})
	memory.SeedUser(st, &model.User{ID: 7, Name: "Dana", Role: model.RoleAgent})
	memory.SeedUser(st, &model.User{ID: 9, Name: "Morgan", Role: model.RoleAdmin})

	return &fixture{
		store:      st,
		clock:      clk,
		channel:    ch,
		fanout:     fo,
		notifier:   notifier,
		sm:         sm,
		dispatcher: d,
	}
}

// seedConversation creates a contact plus an open conversation. The first
// seeded contact gets phone 555-0100, later ones count up.
func (f *fixture) seedConversation(status model.ConversationStatus) *model.Conversation {
	ctx := context.Background()
	f.seeded++
	contact := &model.ContactLog{
		Phone:     fmt.Sprintf("555-%04d", 99+f.seeded),
		Name:      "Riley",
		CreatedAt: f.clock.Now(),
	}
	if err := f.store.Contacts.Create(ctx, contact); err != nil {
		panic(err)
	}
	conv := &model.Conversation{
		ContactID:       contact.ID,
		Status:          status,
		Priority:        model.PriorityNormal,
		AssignmentState: model.AssignmentUnassigned,
		CreatedAt:       f.clock.Now(),
		UpdatedAt:       f.clock.Now(),
	}
	if err := f.store.Conversations.Create(ctx, conv); err != nil {
		panic(err)
	}
	return conv
}

func int64ptr(v int64) *int64 { return &v }
