package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halodesk/support-platform/internal/bot"
	"github.com/halodesk/support-platform/internal/chat"
	"github.com/halodesk/support-platform/internal/model"
	"github.com/halodesk/support-platform/internal/realtime"
	"github.com/halodesk/support-platform/internal/whatsapp"
)

func TestSendMessageValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	conv := f.seedConversation(model.StatusHuman)

	t.Run("BadConversationID", func(t *testing.T) {
		_, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: 0,
			SenderUserID:   int64ptr(7),
			Body:           "hi",
		})
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("NoSender", func(t *testing.T) {
		_, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			Body:           "hi",
		})
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("BothSenders", func(t *testing.T) {
		_, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID:  conv.ID,
			SenderUserID:    int64ptr(7),
			SenderContactID: int64ptr(1),
			Body:            "hi",
		})
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("EmptyContent", func(t *testing.T) {
		_, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			SenderUserID:   int64ptr(7),
		})
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("ClosedConversation", func(t *testing.T) {
		closed := f.seedConversation(model.StatusClosed)
		_, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: closed.ID,
			SenderUserID:   int64ptr(7),
			Body:           "hi",
		})
		assert.ErrorIs(t, err, model.ErrInvalidState)
	})
}

func TestSendMessageTimers(t *testing.T) {
	ctx := context.Background()

	t.Run("ClientMessageStampsClientLast", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)

		result, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID:  conv.ID,
			SenderContactID: int64ptr(conv.ContactID),
			Body:            "Hello",
		})
		require.NoError(t, err)
		require.NotNil(t, result.Conversation.ClientLastMessageAt)
		assert.Equal(t, testEpoch, *result.Conversation.ClientLastMessageAt)
		assert.Nil(t, result.Conversation.FirstResponseAt)
		assert.Equal(t, chat.DeliverySkipped, result.Delivery)
	})

	t.Run("FirstResponseSetOnce", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)

		_, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID:  conv.ID,
			SenderContactID: int64ptr(conv.ContactID),
			Body:            "Hello",
		})
		require.NoError(t, err)

		f.clock.Advance(2 * time.Minute)
		first, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			SenderUserID:   int64ptr(7),
			SenderRole:     model.RoleAgent,
			Body:           "Hi, how can I help?",
		})
		require.NoError(t, err)
		require.NotNil(t, first.Conversation.FirstResponseAt)
		firstResponse := *first.Conversation.FirstResponseAt

		f.clock.Advance(5 * time.Minute)
		second, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			SenderUserID:   int64ptr(7),
			SenderRole:     model.RoleAgent,
			Body:           "Anything else?",
		})
		require.NoError(t, err)
		assert.Equal(t, firstResponse, *second.Conversation.FirstResponseAt, "first response timestamp must not move")
	})

	t.Run("AgentFirstThenLast", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)

		first, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			SenderUserID:   int64ptr(7),
			SenderRole:     model.RoleAgent,
			Body:           "one",
		})
		require.NoError(t, err)
		require.NotNil(t, first.Conversation.AgentFirstMessageAt)
		assert.Nil(t, first.Conversation.AgentLastMessageAt)

		f.clock.Advance(time.Minute)
		second, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			SenderUserID:   int64ptr(7),
			SenderRole:     model.RoleAgent,
			Body:           "two",
		})
		require.NoError(t, err)
		assert.Equal(t, *first.Conversation.AgentFirstMessageAt, *second.Conversation.AgentFirstMessageAt)
		require.NotNil(t, second.Conversation.AgentLastMessageAt)
		assert.Equal(t, testEpoch.Add(time.Minute), *second.Conversation.AgentLastMessageAt)
	})

	t.Run("BotAndAdminSkipAgentTimers", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)

		botResult, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			SenderUserID:   int64ptr(testBotUserID),
			Body:           "automated reply",
		})
		require.NoError(t, err)
		assert.Nil(t, botResult.Conversation.AgentFirstMessageAt)

		adminResult, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			SenderUserID:   int64ptr(9),
			SenderRole:     model.RoleAdmin,
			Body:           "supervisor note",
		})
		require.NoError(t, err)
		assert.Nil(t, adminResult.Conversation.AgentFirstMessageAt)
	})

	t.Run("AverageResponseOverwrites", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)

		inbound, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID:  conv.ID,
			SenderContactID: int64ptr(conv.ContactID),
			Body:            "Hello",
		})
		require.NoError(t, err)
		_, err = f.dispatcher.MarkDelivered(ctx, inbound.Message.ID)
		require.NoError(t, err)

		f.clock.Advance(90 * time.Second)
		reply, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			SenderUserID:   int64ptr(7),
			SenderRole:     model.RoleAgent,
			Body:           "Hi",
		})
		require.NoError(t, err)
		require.NotNil(t, reply.Conversation.AverageAgentResponseSeconds)
		assert.InDelta(t, 90, *reply.Conversation.AverageAgentResponseSeconds, 0.001)

		// a later, faster reply replaces the sample
		f.clock.Advance(time.Minute)
		inbound2, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID:  conv.ID,
			SenderContactID: int64ptr(conv.ContactID),
			Body:            "One more thing",
		})
		require.NoError(t, err)
		_, err = f.dispatcher.MarkDelivered(ctx, inbound2.Message.ID)
		require.NoError(t, err)

		f.clock.Advance(10 * time.Second)
		reply2, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			SenderUserID:   int64ptr(7),
			SenderRole:     model.RoleAgent,
			Body:           "Sure",
		})
		require.NoError(t, err)
		assert.InDelta(t, 10, *reply2.Conversation.AverageAgentResponseSeconds, 0.001)
	})
}

func TestSendMessageDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("OutboundDelivered", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)

		result, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			SenderUserID:   int64ptr(7),
			SenderRole:     model.RoleAgent,
			Body:           "Hi there",
		})
		require.NoError(t, err)
		assert.Equal(t, chat.DeliveryDelivered, result.Delivery)
		assert.NotEmpty(t, result.Message.ExternalID)
		assert.Equal(t, []string{"Hi there"}, f.channel.sentTexts())
	})

	t.Run("ProviderFailureDegrades", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)
		f.channel.fail = true

		result, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			SenderUserID:   int64ptr(7),
			SenderRole:     model.RoleAgent,
			Body:           "Hi there",
		})
		require.NoError(t, err, "delivery failure must not fail the send")
		assert.Equal(t, chat.DeliveryFailed, result.Delivery)
		assert.Empty(t, result.Message.ExternalID)

		// the message is still on record
		msgs, err := f.store.Messages.ListByConversation(ctx, conv.ID, 0)
		require.NoError(t, err)
		assert.Len(t, msgs, 1)

		// the sender hears about the failed delivery
		assert.Equal(t, 1, countNotifications(f, 7))
	})

	t.Run("InteractiveList", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)

		result, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			SenderUserID:   int64ptr(7),
			SenderRole:     model.RoleAgent,
			Body:           "Pick a topic",
			ListOptions: []whatsapp.ListOption{
				{ID: "billing", Title: "Billing"},
				{ID: "handoff", Title: "Talk to a person"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, chat.DeliveryDelivered, result.Delivery)
		assert.Equal(t, []string{"Pick a topic"}, f.channel.lists)
	})

	t.Run("RawMediaUploadedBeforeSend", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)

		result, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			SenderUserID:   int64ptr(7),
			SenderRole:     model.RoleAgent,
			Attachment: &model.AttachmentInput{
				Data:     []byte("fake-png"),
				MimeType: "image/png",
				FileName: "shot.png",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, chat.DeliveryDelivered, result.Delivery)
		assert.Equal(t, []string{"media-1"}, f.channel.media, "send must reference the uploaded media id")
	})

	t.Run("FanoutToGroupAndAdmins", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)

		_, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID:  conv.ID,
			SenderContactID: int64ptr(conv.ContactID),
			Body:            "Hello",
		})
		require.NoError(t, err)

		groupEvs := f.fanout.groupEvents(realtime.ConversationGroup(conv.ID))
		require.NotEmpty(t, groupEvs)
		assert.Equal(t, realtime.EventMessageCreated, groupEvs[0].Type)
		assert.NotEmpty(t, f.fanout.groupEvents(realtime.AdminGroup))
	})
}

func webhookText(extID, phone, text string) whatsapp.IncomingMessage {
	return whatsapp.IncomingMessage{
		ExternalID:  extID,
		FromPhone:   phone,
		ProfileName: "Riley",
		Text:        text,
	}
}

func TestHandleInboundWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesContactAndConversation", func(t *testing.T) {
		f := newFixture(nil)

		result, err := f.dispatcher.HandleInboundWebhook(ctx, webhookText("wamid.A1", "555-0100", "Hello"))
		require.NoError(t, err)
		assert.Equal(t, model.StatusBot, result.Conversation.Status)
		assert.Equal(t, "wamid.A1", result.Message.ExternalID)

		contact, err := f.store.Contacts.GetByPhone(ctx, "555-0100")
		require.NoError(t, err)
		assert.Equal(t, "Riley", contact.Name)
	})

	t.Run("ReusesActiveConversation", func(t *testing.T) {
		f := newFixture(nil)

		first, err := f.dispatcher.HandleInboundWebhook(ctx, webhookText("wamid.A1", "555-0100", "Hello"))
		require.NoError(t, err)
		second, err := f.dispatcher.HandleInboundWebhook(ctx, webhookText("wamid.A2", "555-0100", "Are you there?"))
		require.NoError(t, err)
		assert.Equal(t, first.Conversation.ID, second.Conversation.ID)
	})

	t.Run("DuplicateDeliveryIsNoOp", func(t *testing.T) {
		f := newFixture(nil)

		first, err := f.dispatcher.HandleInboundWebhook(ctx, webhookText("wamid.A1", "555-0100", "Hello"))
		require.NoError(t, err)
		replay, err := f.dispatcher.HandleInboundWebhook(ctx, webhookText("wamid.A1", "555-0100", "Hello"))
		require.NoError(t, err)
		assert.Equal(t, chat.DeliveryDuplicate, replay.Delivery)
		assert.Equal(t, first.Message.ID, replay.Message.ID)

		msgs, err := f.store.Messages.ListByConversation(ctx, first.Conversation.ID, 0)
		require.NoError(t, err)
		assert.Len(t, msgs, 1)
	})

	t.Run("MediaURLResolved", func(t *testing.T) {
		f := newFixture(nil)
		f.channel.mediaURL = "https://media.example/abc"

		result, err := f.dispatcher.HandleInboundWebhook(ctx, whatsapp.IncomingMessage{
			ExternalID: "wamid.M1",
			FromPhone:  "555-0100",
			Caption:    "invoice",
			MediaID:    "media-1",
			MimeType:   "image/png",
		})
		require.NoError(t, err)
		require.NotNil(t, result.Message.Attachment)
		assert.Equal(t, "https://media.example/abc", result.Message.Attachment.URL)
		assert.Equal(t, "invoice", result.Message.Body)
	})

	t.Run("MissingFieldsRejected", func(t *testing.T) {
		f := newFixture(nil)
		_, err := f.dispatcher.HandleInboundWebhook(ctx, whatsapp.IncomingMessage{FromPhone: "555-0100"})
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}

func TestBotStage(t *testing.T) {
	ctx := context.Background()

	t.Run("GreetsFirstContact", func(t *testing.T) {
		f := newFixture(bot.NewRuleEngine())

		result, err := f.dispatcher.HandleInboundWebhook(ctx, webhookText("wamid.A1", "555-0100", "Hello"))
		require.NoError(t, err)
		assert.Equal(t, model.StatusBot, result.Conversation.Status)

		texts := f.channel.sentTexts()
		require.Len(t, texts, 1)
		assert.Contains(t, texts[0], "support assistant")
	})

	t.Run("KeywordTriggersHandoff", func(t *testing.T) {
		f := newFixture(bot.NewRuleEngine())

		result, err := f.dispatcher.HandleInboundWebhook(ctx, webhookText("wamid.A1", "555-0100", "I need an agent"))
		require.NoError(t, err)
		assert.Equal(t, model.StatusWaiting, result.Conversation.Status)
		require.NotNil(t, result.Conversation.AgentRequestAt)

		// admins hear about the queue entry
		var notified bool
		for _, ev := range f.fanout.userEvents(9) {
			if ev.Type == realtime.EventNotificationCreated {
				notified = true
			}
		}
		assert.True(t, notified)
	})

	t.Run("EngineErrorDegradesToHandoff", func(t *testing.T) {
		f := newFixture(failingEngine{})

		result, err := f.dispatcher.HandleInboundWebhook(ctx, webhookText("wamid.A1", "555-0100", "Hello"))
		require.NoError(t, err)
		assert.Equal(t, model.StatusWaiting, result.Conversation.Status)
	})

	t.Run("NoBotOnHumanConversation", func(t *testing.T) {
		f := newFixture(bot.NewRuleEngine())
		conv := f.seedConversation(model.StatusHuman)

		_, err := f.dispatcher.HandleInboundWebhook(ctx, webhookText("wamid.A1", "555-0100", "Hello"))
		require.NoError(t, err)
		got, err := f.store.Conversations.GetByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusHuman, got.Status)
		assert.Empty(t, f.channel.sentTexts(), "bot must stay quiet once a human owns the thread")
	})
}

type failingEngine struct{}

func (failingEngine) Name() string { return "failing" }

func (failingEngine) Decide(ctx context.Context, conv *model.Conversation, msg *model.Message) (bot.Decision, error) {
	return bot.Decision{}, assert.AnError
}

func TestReceipts(t *testing.T) {
	ctx := context.Background()

	t.Run("DeliveredThenRead", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)

		result, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			SenderUserID:   int64ptr(7),
			SenderRole:     model.RoleAgent,
			Body:           "Hi",
		})
		require.NoError(t, err)

		f.clock.Advance(time.Second)
		msg, err := f.dispatcher.MarkDelivered(ctx, result.Message.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MessageDelivered, msg.Status)
		require.NotNil(t, msg.DeliveredAt)

		f.clock.Advance(time.Second)
		msg, err = f.dispatcher.MarkRead(ctx, result.Message.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MessageRead, msg.Status)
		require.NotNil(t, msg.ReadAt)
	})

	t.Run("ReadPromotesThroughDelivered", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)

		result, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			SenderUserID:   int64ptr(7),
			SenderRole:     model.RoleAgent,
			Body:           "Hi",
		})
		require.NoError(t, err)

		msg, err := f.dispatcher.MarkRead(ctx, result.Message.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MessageRead, msg.Status)
		assert.NotNil(t, msg.DeliveredAt, "read must imply delivered")
	})

	t.Run("StatusNeverRegresses", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)

		result, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			SenderUserID:   int64ptr(7),
			SenderRole:     model.RoleAgent,
			Body:           "Hi",
		})
		require.NoError(t, err)

		msg, err := f.dispatcher.MarkRead(ctx, result.Message.ID)
		require.NoError(t, err)
		readAt := *msg.ReadAt

		f.clock.Advance(time.Minute)
		msg, err = f.dispatcher.MarkDelivered(ctx, result.Message.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MessageRead, msg.Status)
		assert.Equal(t, readAt, *msg.ReadAt)
	})

	t.Run("ClientReadPropagatesUpstream", func(t *testing.T) {
		f := newFixture(nil)

		result, err := f.dispatcher.HandleInboundWebhook(ctx, webhookText("wamid.A1", "555-0100", "Hello"))
		require.NoError(t, err)

		_, err = f.dispatcher.MarkRead(ctx, result.Message.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"wamid.A1"}, f.channel.readIDs)
	})

	t.Run("StatusUpdateByExternalID", func(t *testing.T) {
		f := newFixture(nil)
		conv := f.seedConversation(model.StatusHuman)

		result, err := f.dispatcher.SendMessage(ctx, chat.SendRequest{
			ConversationID: conv.ID,
			SenderUserID:   int64ptr(7),
			SenderRole:     model.RoleAgent,
			Body:           "Hi",
		})
		require.NoError(t, err)
		require.NotEmpty(t, result.Message.ExternalID)

		err = f.dispatcher.ApplyStatusUpdate(ctx, whatsapp.StatusUpdate{
			ExternalID: result.Message.ExternalID,
			Status:     "delivered",
		})
		require.NoError(t, err)

		msg, err := f.store.Messages.GetByID(ctx, result.Message.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MessageDelivered, msg.Status)
	})
}

func TestStartConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("ByPhone", func(t *testing.T) {
		f := newFixture(nil)
		contact := &model.ContactLog{Phone: "555-0100", Name: "Riley", CreatedAt: f.clock.Now()}
		require.NoError(t, f.store.Contacts.Create(ctx, contact))

		conv, err := f.dispatcher.StartConversation(ctx, model.StartConversationRequest{Phone: "555-0100"})
		require.NoError(t, err)
		assert.Equal(t, model.StatusBot, conv.Status)
		assert.Equal(t, contact.ID, conv.ContactID)
	})

	t.Run("ReturnsExistingActive", func(t *testing.T) {
		f := newFixture(nil)
		contact := &model.ContactLog{Phone: "555-0100", CreatedAt: f.clock.Now()}
		require.NoError(t, f.store.Contacts.Create(ctx, contact))

		first, err := f.dispatcher.StartConversation(ctx, model.StartConversationRequest{ContactID: contact.ID})
		require.NoError(t, err)
		second, err := f.dispatcher.StartConversation(ctx, model.StartConversationRequest{ContactID: contact.ID})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("NoContactInfo", func(t *testing.T) {
		f := newFixture(nil)
		_, err := f.dispatcher.StartConversation(ctx, model.StartConversationRequest{})
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}
