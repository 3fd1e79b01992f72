package model

import (
	"time"
)

// MessageStatus advances monotonically: sent, delivered, read.
type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
)

// rank orders statuses so transitions can be checked for regression.
func (s MessageStatus) rank() int {
	switch s {
	case MessageSent:
		return 1
	case MessageDelivered:
		return 2
	case MessageRead:
		return 3
	}
	return 0
}

// AtLeast reports whether s is the same as or later than other.
func (s MessageStatus) AtLeast(other MessageStatus) bool {
	return s.rank() >= other.rank()
}

// Message is one unit of communication within a conversation. Exactly one of
// SenderUserID / SenderContactID is set; the bot is a privileged internal
// user, never a third sender kind.
type Message struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	ExternalID     string `json:"external_id,omitempty"`

	SenderUserID    *int64 `json:"sender_user_id,omitempty"`
	SenderContactID *int64 `json:"sender_contact_id,omitempty"`

	Body                  string      `json:"body,omitempty"`
	Attachment            *Attachment `json:"attachment,omitempty"`
	InteractiveReplyID    string      `json:"interactive_reply_id,omitempty"`
	InteractiveReplyTitle string      `json:"interactive_reply_title,omitempty"`

	Status      MessageStatus `json:"status"`
	SentAt      time.Time     `json:"sent_at"`
	DeliveredAt *time.Time    `json:"delivered_at,omitempty"`
	ReadAt      *time.Time    `json:"read_at,omitempty"`
}

// FromContact reports whether the message was authored by the client contact.
func (m *Message) FromContact() bool {
	return m.SenderContactID != nil
}

// Attachment is a binary-media reference bound to exactly one message.
type Attachment struct {
	ID              int64  `json:"id,omitempty"`
	ProviderMediaID string `json:"provider_media_id"`
	MimeType        string `json:"mime_type,omitempty"`
	FileName        string `json:"file_name,omitempty"`
	Caption         string `json:"caption,omitempty"`
	URL             string `json:"url,omitempty"`
}

// AttachmentInput describes media to attach to an outgoing or incoming
// message. Outbound media may carry raw Data, uploaded to the provider before
// sending; inbound media arrives with a ProviderMediaID already set.
type AttachmentInput struct {
	ProviderMediaID string `json:"provider_media_id,omitempty"`
	MimeType        string `json:"mime_type,omitempty"`
	FileName        string `json:"file_name,omitempty"`
	Caption         string `json:"caption,omitempty"`
	URL             string `json:"url,omitempty"`
	Data            []byte `json:"data,omitempty"`
}

// ListOptionInput is one row of an interactive option list to send.
type ListOptionInput struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SendMessageRequest is the API request to send a message on a conversation.
// When ListOptions is set the body acts as the list header.
type SendMessageRequest struct {
	Body        string            `json:"body,omitempty"`
	Attachment  *AttachmentInput  `json:"attachment,omitempty"`
	ListOptions []ListOptionInput `json:"list_options,omitempty"`
}

// ListMessagesResponse is the response for listing conversation messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
