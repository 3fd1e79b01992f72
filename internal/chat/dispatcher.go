package chat

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/halodesk/support-platform/internal/bot"
	"github.com/halodesk/support-platform/internal/clock"
	"github.com/halodesk/support-platform/internal/model"
	"github.com/halodesk/support-platform/internal/realtime"
	"github.com/halodesk/support-platform/internal/store"
	"github.com/halodesk/support-platform/internal/whatsapp"
	"github.com/halodesk/support-platform/pkg/logger"
	"github.com/halodesk/support-platform/pkg/metrics"
)

// DeliveryOutcome distinguishes the ways a send can end without an error:
// delivered to the provider, persisted but undelivered, inbound (nothing to
// deliver), or a replayed webhook delivery.
type DeliveryOutcome string

const (
	DeliveryDelivered DeliveryOutcome = "delivered"
	DeliveryFailed    DeliveryOutcome = "failed"
	DeliverySkipped   DeliveryOutcome = "skipped"
	DeliveryDuplicate DeliveryOutcome = "duplicate"
)

// SendRequest describes one message to dispatch. Exactly one of SenderUserID
// and SenderContactID must be set.
type SendRequest struct {
	ConversationID int64

	SenderUserID    *int64
	SenderRole      model.Role
	SenderContactID *int64

	Body       string
	Attachment *model.AttachmentInput

	// ListOptions sends an interactive list instead of plain text.
	ListOptions []whatsapp.ListOption

	InteractiveReplyID    string
	InteractiveReplyTitle string

	// ExternalID carries the provider message id for webhook-origin
	// messages; it is the idempotency key.
	ExternalID string
}

// SendResult is what a dispatch returns. Delivery failures degrade the
// outcome instead of failing the call, so the local record always exists.
type SendResult struct {
	Message      *model.Message      `json:"message"`
	Conversation *model.Conversation `json:"conversation"`
	Delivery     DeliveryOutcome     `json:"delivery"`
}

// Dispatcher orchestrates the send/receive pipeline: persistence, SLA timer
// bookkeeping, outbound provider delivery, and real-time fanout.
type Dispatcher struct {
	store    *store.Store
	channel  whatsapp.OutboundChannel
	fanout   realtime.Fanout
	sm       *StateMachine
	engine   bot.Engine
	notifier *Notifier
	clock    clock.Clock
	logger   *logger.Logger

	// botUserID is the reserved internal user the bot sends as; its
	// messages never touch the agent SLA timers.
	botUserID int64
}

// NewDispatcher creates the message dispatcher.
func NewDispatcher(
	st *store.Store,
	channel whatsapp.OutboundChannel,
	fanout realtime.Fanout,
	sm *StateMachine,
	engine bot.Engine,
	notifier *Notifier,
	clk clock.Clock,
	botUserID int64,
	log *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		store:     st,
		channel:   channel,
		fanout:    fanout,
		sm:        sm,
		engine:    engine,
		notifier:  notifier,
		clock:     clk,
		botUserID: botUserID,
		logger:    log,
	}
}

// StartConversation opens a new conversation for a contact, resolved by id
// or by phone. An already-active conversation for the contact is returned
// as-is; a contact never has two open threads.
func (d *Dispatcher) StartConversation(ctx context.Context, req model.StartConversationRequest) (*model.Conversation, error) {
	var contact *model.ContactLog
	var err error
	switch {
	case req.ContactID > 0:
		contact, err = d.store.Contacts.GetByID(ctx, req.ContactID)
	case req.Phone != "":
		contact, err = d.store.Contacts.GetByPhone(ctx, req.Phone)
	default:
		return nil, fmt.Errorf("%w: contact id or phone required", model.ErrValidation)
	}
	if err != nil {
		return nil, err
	}

	if existing, err := d.store.Conversations.FindActiveByContact(ctx, contact.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	now := d.clock.Now()
	priority := req.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}
	conv := &model.Conversation{
		ContactID:       contact.ID,
		Status:          model.StatusBot,
		Priority:        priority,
		AssignmentState: model.AssignmentUnassigned,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := d.store.Conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	metrics.RecordTransition(string(model.StatusBot))
	return conv, nil
}

// SendMessage validates, persists, and delivers one message, updating the
// conversation's SLA timers from a single clock read. Structural problems
// (missing conversation, closed conversation, malformed sender) return typed
// errors; outbound delivery failures degrade the result instead.
func (d *Dispatcher) SendMessage(ctx context.Context, req SendRequest) (*SendResult, error) {
	if req.ConversationID <= 0 {
		return nil, fmt.Errorf("%w: conversation id must be positive", model.ErrValidation)
	}
	if (req.SenderUserID == nil) == (req.SenderContactID == nil) {
		return nil, fmt.Errorf("%w: exactly one of sender user and sender contact must be set", model.ErrValidation)
	}
	if req.Body == "" && req.Attachment == nil && len(req.ListOptions) == 0 {
		return nil, fmt.Errorf("%w: message has no content", model.ErrValidation)
	}

	conv, err := d.store.Conversations.GetByID(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.IsClosed() {
		return nil, fmt.Errorf("%w: conversation %d is closed", model.ErrInvalidState, conv.ID)
	}

	// Every timeline field stamped below derives from this one read.
	now := d.clock.Now()
	fromContact := req.SenderContactID != nil

	msg := &model.Message{
		ConversationID:        conv.ID,
		ExternalID:            req.ExternalID,
		SenderUserID:          req.SenderUserID,
		SenderContactID:       req.SenderContactID,
		Body:                  req.Body,
		InteractiveReplyID:    req.InteractiveReplyID,
		InteractiveReplyTitle: req.InteractiveReplyTitle,
		Status:                model.MessageSent,
		SentAt:                now,
	}
	if req.Attachment != nil {
		msg.Attachment = &model.Attachment{
			ProviderMediaID: req.Attachment.ProviderMediaID,
			MimeType:        req.Attachment.MimeType,
			FileName:        req.Attachment.FileName,
			Caption:         req.Attachment.Caption,
			URL:             req.Attachment.URL,
		}
	}
	if err := d.store.Messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	// The last client message is probed outside the mutate closure so the
	// optimistic retry re-runs without extra I/O.
	var lastClient *model.Message
	if !fromContact {
		if m, err := d.store.Messages.LastClientMessage(ctx, conv.ID); err == nil {
			lastClient = m
		} else if !errors.Is(err, model.ErrNotFound) {
			d.logger.Warn("last client message lookup failed", zap.Int64("conversation_id", conv.ID), zap.Error(err))
		}
	}

	conv, _, err = d.sm.apply(ctx, conv.ID, func(c *model.Conversation) (bool, error) {
		if fromContact {
			t := now
			c.ClientLastMessageAt = &t
		} else {
			if c.ClientLastMessageAt != nil && c.FirstResponseAt == nil {
				t := now
				c.FirstResponseAt = &t
			}
			if d.isAgentSender(req) {
				if c.AgentFirstMessageAt == nil {
					t := now
					c.AgentFirstMessageAt = &t
				} else {
					t := now
					c.AgentLastMessageAt = &t
				}
				if lastClient != nil && lastClient.DeliveredAt != nil {
					// Last-sample overwrite, not a running mean.
					secs := now.Sub(*lastClient.DeliveredAt).Seconds()
					c.AverageAgentResponseSeconds = &secs
				}
			}
		}
		c.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("update conversation timers: %w", err)
	}

	result := &SendResult{Message: msg, Conversation: conv, Delivery: DeliverySkipped}

	if !fromContact {
		result.Delivery = d.deliver(ctx, conv, msg, req)
	}

	metrics.RecordMessage(direction(fromContact))
	d.pushMessageCreated(ctx, conv, msg)

	return result, nil
}

// isAgentSender reports whether the sender counts toward agent SLA timers:
// an internal user that is neither the reserved bot id nor an admin.
func (d *Dispatcher) isAgentSender(req SendRequest) bool {
	if req.SenderUserID == nil {
		return false
	}
	if *req.SenderUserID == d.botUserID {
		return false
	}
	return req.SenderRole != model.RoleAdmin
}

// deliver pushes an outbound message through the provider and records the
// provider id. Failures are contained here: the local record stays intact,
// the outcome degrades, and the caller's request still succeeds.
func (d *Dispatcher) deliver(ctx context.Context, conv *model.Conversation, msg *model.Message, req SendRequest) DeliveryOutcome {
	contact, err := d.store.Contacts.GetByID(ctx, conv.ContactID)
	if err != nil {
		d.logger.Error("contact lookup for delivery failed",
			zap.Int64("conversation_id", conv.ID), zap.Error(err))
		return d.deliveryFailed(ctx, conv, req)
	}

	// Raw outbound media is pushed to the provider first; the returned
	// media id is what SendMedia references.
	if msg.Attachment != nil && msg.Attachment.ProviderMediaID == "" && len(req.Attachment.Data) > 0 {
		mediaID, err := d.channel.UploadMedia(ctx, req.Attachment.Data, msg.Attachment.MimeType, msg.Attachment.FileName)
		if err != nil {
			d.logger.Error("media upload failed",
				zap.Int64("message_id", msg.ID), zap.Error(err))
			return d.deliveryFailed(ctx, conv, req)
		}
		msg.Attachment.ProviderMediaID = mediaID
	}

	var providerID string
	switch {
	case len(req.ListOptions) > 0:
		providerID, err = d.channel.SendInteractiveList(ctx, contact.Phone, req.Body, req.ListOptions)
	case msg.Attachment != nil && msg.Attachment.ProviderMediaID != "":
		providerID, err = d.channel.SendMedia(ctx, contact.Phone,
			msg.Attachment.ProviderMediaID, msg.Attachment.MimeType, msg.Attachment.Caption)
	default:
		providerID, err = d.channel.SendText(ctx, contact.Phone, msg.Body)
	}
	if err != nil {
		d.logger.Error("outbound delivery failed",
			zap.Int64("conversation_id", conv.ID),
			zap.Int64("message_id", msg.ID),
			zap.Error(err))
		return d.deliveryFailed(ctx, conv, req)
	}

	msg.ExternalID = providerID
	if err := d.store.Messages.Update(ctx, msg); err != nil {
		d.logger.Error("recording provider id failed",
			zap.Int64("message_id", msg.ID), zap.Error(err))
	}
	return DeliveryDelivered
}

// deliveryFailed records a failed outbound attempt and tells the sending
// user, who otherwise has no way to see that the customer never got the
// message. Bot sends fail silently; the metric still counts them.
func (d *Dispatcher) deliveryFailed(ctx context.Context, conv *model.Conversation, req SendRequest) DeliveryOutcome {
	metrics.DeliveryFailuresTotal.Inc()
	if d.notifier != nil && req.SenderUserID != nil && *req.SenderUserID != d.botUserID {
		convID := conv.ID
		if _, err := d.notifier.Notify(ctx, model.NotificationDeliveryFailure,
			"Message could not be delivered", "", &convID, []int64{*req.SenderUserID}); err != nil {
			d.logger.Warn("delivery failure notification failed",
				zap.Int64("conversation_id", conv.ID), zap.Error(err))
		}
	}
	return DeliveryFailed
}

// HandleInboundWebhook processes one normalized provider message: contact
// upsert, conversation routing, external-id dedupe, dispatch, and the bot
// stage. At-least-once webhook delivery is tolerated; replays are no-ops.
func (d *Dispatcher) HandleInboundWebhook(ctx context.Context, in whatsapp.IncomingMessage) (*SendResult, error) {
	if in.FromPhone == "" || in.ExternalID == "" {
		return nil, fmt.Errorf("%w: webhook message missing sender or id", model.ErrValidation)
	}
	now := d.clock.Now()

	contact, err := d.store.Contacts.GetByPhone(ctx, in.FromPhone)
	if errors.Is(err, model.ErrNotFound) {
		contact = &model.ContactLog{Phone: in.FromPhone, Name: in.ProfileName, CreatedAt: now}
		if err := d.store.Contacts.Create(ctx, contact); err != nil {
			// A concurrent webhook may have won the insert race.
			contact, err = d.store.Contacts.GetByPhone(ctx, in.FromPhone)
			if err != nil {
				return nil, fmt.Errorf("resolve contact: %w", err)
			}
		}
	} else if err != nil {
		return nil, fmt.Errorf("resolve contact: %w", err)
	}

	conv, err := d.store.Conversations.FindActiveByContact(ctx, contact.ID)
	if errors.Is(err, model.ErrNotFound) {
		conv = &model.Conversation{
			ContactID:       contact.ID,
			Status:          model.StatusBot,
			Priority:        model.PriorityNormal,
			AssignmentState: model.AssignmentUnassigned,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := d.store.Conversations.Create(ctx, conv); err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		metrics.RecordTransition(string(model.StatusBot))
	} else if err != nil {
		return nil, fmt.Errorf("resolve conversation: %w", err)
	}

	if existing, err := d.store.Messages.FindByExternalID(ctx, conv.ID, in.ExternalID); err == nil {
		metrics.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
		return &SendResult{Message: existing, Conversation: conv, Delivery: DeliveryDuplicate}, nil
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("dedupe probe: %w", err)
	}

	var attachment *model.AttachmentInput
	if in.MediaID != "" {
		attachment = &model.AttachmentInput{
			ProviderMediaID: in.MediaID,
			MimeType:        in.MimeType,
			Caption:         in.Caption,
		}
		if url, err := d.channel.DownloadMediaURL(ctx, in.MediaID); err == nil {
			attachment.URL = url
		} else {
			// keep the record without a local URL; media stays fetchable
			// by provider id
			d.logger.Warn("media url resolution failed", zap.String("media_id", in.MediaID), zap.Error(err))
		}
	}

	// Snapshot before dispatch: the bot greets only a first contact, which
	// is unknowable after ClientLastMessageAt is stamped.
	preDispatch := *conv

	result, err := d.SendMessage(ctx, SendRequest{
		ConversationID:        conv.ID,
		SenderContactID:       &contact.ID,
		Body:                  textOrCaption(in),
		Attachment:            attachment,
		InteractiveReplyID:    in.InteractiveReplyID,
		InteractiveReplyTitle: in.InteractiveReplyTitle,
		ExternalID:            in.ExternalID,
	})
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.WebhookEventsTotal.WithLabelValues("ok").Inc()

	if conv.Status == model.StatusBot && d.engine != nil {
		d.runBotStage(ctx, &preDispatch, result)
	}
	return result, nil
}

// runBotStage asks the engine what to do with a client message on a
// bot-handled conversation. Engine failures degrade to a human handoff so a
// broken bot never strands a customer.
func (d *Dispatcher) runBotStage(ctx context.Context, preDispatch *model.Conversation, result *SendResult) {
	decision, err := d.engine.Decide(ctx, preDispatch, result.Message)
	if err != nil {
		d.logger.Warn("bot engine failed, handing off",
			zap.String("engine", d.engine.Name()),
			zap.Int64("conversation_id", preDispatch.ID),
			zap.Error(err))
		decision = bot.Decision{Action: bot.ActionHandoff}
	}
	metrics.BotDecisionsTotal.WithLabelValues(string(decision.Action)).Inc()

	switch decision.Action {
	case bot.ActionReply:
		botID := d.botUserID
		if _, err := d.SendMessage(ctx, SendRequest{
			ConversationID: preDispatch.ID,
			SenderUserID:   &botID,
			Body:           decision.Reply,
		}); err != nil {
			d.logger.Error("bot reply failed", zap.Int64("conversation_id", preDispatch.ID), zap.Error(err))
		}
	case bot.ActionHandoff:
		conv, err := d.sm.RequestHuman(ctx, preDispatch.ID)
		if err != nil {
			d.logger.Error("bot handoff failed", zap.Int64("conversation_id", preDispatch.ID), zap.Error(err))
			return
		}
		result.Conversation = conv
		if d.notifier != nil {
			convID := conv.ID
			if _, err := d.notifier.NotifyAdmins(ctx, model.NotificationAgentRequested,
				"Customer waiting for an agent", "", &convID); err != nil {
				d.logger.Warn("handoff notification failed", zap.Int64("conversation_id", conv.ID), zap.Error(err))
			}
		}
	}
}

// ApplyStatusUpdate consumes a provider delivery/read receipt.
func (d *Dispatcher) ApplyStatusUpdate(ctx context.Context, st whatsapp.StatusUpdate) error {
	msg, err := d.store.Messages.GetByExternalID(ctx, st.ExternalID)
	if err != nil {
		return err
	}
	switch st.Status {
	case "delivered":
		_, err = d.MarkDelivered(ctx, msg.ID)
	case "read":
		_, err = d.MarkRead(ctx, msg.ID)
	case "failed":
		metrics.DeliveryFailuresTotal.Inc()
		d.logger.Warn("provider reported delivery failure",
			zap.Int64("message_id", msg.ID), zap.String("external_id", st.ExternalID))
	}
	return err
}

// MarkDelivered advances a message to delivered. Already-delivered (or read)
// messages are left alone; status never regresses.
func (d *Dispatcher) MarkDelivered(ctx context.Context, messageID int64) (*model.Message, error) {
	msg, err := d.store.Messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Status.AtLeast(model.MessageDelivered) {
		return msg, nil
	}
	now := d.clock.Now()
	msg.Status = model.MessageDelivered
	msg.DeliveredAt = &now
	if err := d.store.Messages.Update(ctx, msg); err != nil {
		return nil, err
	}
	d.pushStatusChanged(ctx, msg)
	return msg, nil
}

// MarkRead advances a message to read, auto-promoting through delivered when
// the delivery receipt never arrived.
func (d *Dispatcher) MarkRead(ctx context.Context, messageID int64) (*model.Message, error) {
	msg, err := d.store.Messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Status.AtLeast(model.MessageRead) {
		return msg, nil
	}
	now := d.clock.Now()
	if msg.DeliveredAt == nil {
		t := now
		msg.DeliveredAt = &t
	}
	msg.Status = model.MessageRead
	msg.ReadAt = &now
	if err := d.store.Messages.Update(ctx, msg); err != nil {
		return nil, err
	}

	// Read receipts for client-authored messages propagate upstream so the
	// customer sees the blue ticks. Best effort.
	if msg.FromContact() && msg.ExternalID != "" {
		if err := d.channel.MarkRead(ctx, msg.ExternalID); err != nil {
			d.logger.Warn("upstream read receipt failed",
				zap.Int64("message_id", msg.ID), zap.Error(err))
		}
	}
	d.pushStatusChanged(ctx, msg)
	return msg, nil
}

func (d *Dispatcher) pushMessageCreated(ctx context.Context, conv *model.Conversation, msg *model.Message) {
	ev := realtime.Event{
		Type:           realtime.EventMessageCreated,
		ConversationID: conv.ID,
		Payload:        msg,
	}
	if err := d.fanout.PushToGroup(ctx, realtime.ConversationGroup(conv.ID), ev); err != nil {
		d.logger.Warn("message fanout failed", zap.Int64("conversation_id", conv.ID), zap.Error(err))
	}

	convEv := realtime.Event{
		Type:           realtime.EventConversationUpdated,
		ConversationID: conv.ID,
		Payload:        conv,
	}
	if conv.AssignedAgentID != nil {
		if err := d.fanout.PushToUser(ctx, *conv.AssignedAgentID, convEv); err != nil {
			d.logger.Warn("agent fanout failed", zap.Int64("agent_id", *conv.AssignedAgentID), zap.Error(err))
		}
	}
	if err := d.fanout.PushToGroup(ctx, realtime.AdminGroup, convEv); err != nil {
		d.logger.Warn("admin fanout failed", zap.Int64("conversation_id", conv.ID), zap.Error(err))
	}
}

func (d *Dispatcher) pushStatusChanged(ctx context.Context, msg *model.Message) {
	ev := realtime.Event{
		Type:           realtime.EventMessageStatusChanged,
		ConversationID: msg.ConversationID,
		Payload:        msg,
	}
	if err := d.fanout.PushToGroup(ctx, realtime.ConversationGroup(msg.ConversationID), ev); err != nil {
		d.logger.Warn("status fanout failed", zap.Int64("message_id", msg.ID), zap.Error(err))
	}
}

func textOrCaption(in whatsapp.IncomingMessage) string {
	if in.Text != "" {
		return in.Text
	}
	return in.Caption
}

func direction(fromContact bool) string {
	if fromContact {
		return "inbound"
	}
	return "outbound"
}
