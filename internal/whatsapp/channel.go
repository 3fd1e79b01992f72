// Package whatsapp provides the outbound messaging channel and the inbound
// webhook normalizer for the WhatsApp Cloud API.
package whatsapp

import (
	"context"
)

// ListOption is one row of an interactive list message.
type ListOption struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// OutboundChannel delivers payloads to the external messaging provider. All
// methods are network calls; a non-2xx provider response surfaces as an error
// wrapping model.ErrDelivery, which the dispatcher records without rethrowing.
type OutboundChannel interface {
	// SendText delivers a text message and returns the provider message id.
	SendText(ctx context.Context, toPhone, text string) (string, error)

	// SendMedia delivers previously uploaded media by provider media id.
	SendMedia(ctx context.Context, toPhone, mediaID, mimeType, caption string) (string, error)

	// SendInteractiveList delivers a tappable option list.
	SendInteractiveList(ctx context.Context, toPhone, header string, options []ListOption) (string, error)

	// UploadMedia pushes raw bytes to the provider and returns its media id.
	UploadMedia(ctx context.Context, data []byte, mimeType, fileName string) (string, error)

	// DownloadMediaURL resolves a provider media id to a fetchable URL.
	DownloadMediaURL(ctx context.Context, mediaID string) (string, error)

	// MarkRead reports a read receipt for an inbound message upstream.
	MarkRead(ctx context.Context, externalMessageID string) error
}
