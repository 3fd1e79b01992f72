package whatsapp

import (
	"encoding/json"
	"fmt"

	"github.com/halodesk/support-platform/internal/model"
)

// IncomingMessage is one normalized message extracted from a webhook delivery.
type IncomingMessage struct {
	ExternalID  string
	FromPhone   string
	ProfileName string
	Text        string

	MediaID  string
	MimeType string
	Caption  string

	InteractiveReplyID    string
	InteractiveReplyTitle string
}

// StatusUpdate is a delivery/read receipt for a previously sent message.
type StatusUpdate struct {
	ExternalID string
	Status     string // "sent", "delivered", "read", "failed"
}

// webhookBody mirrors the Cloud API delivery envelope:
// entry[].changes[].value.{contacts[],messages[],statuses[]}.
type webhookBody struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []rawMessage `json:"messages"`
				Statuses []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
				} `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type rawMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

type rawMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image       *rawMedia `json:"image"`
	Video       *rawMedia `json:"video"`
	Audio       *rawMedia `json:"audio"`
	Document    *rawMedia `json:"document"`
	Interactive *struct {
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
	} `json:"interactive"`
}

// Normalize parses a webhook delivery into normalized messages and status
// updates. Every message of every entry is extracted: the provider batches
// deliveries, and dropping all but the first silently loses traffic.
func Normalize(body []byte) ([]IncomingMessage, []StatusUpdate, error) {
	var payload webhookBody
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, fmt.Errorf("%w: malformed webhook payload: %v", model.ErrValidation, err)
	}

	var messages []IncomingMessage
	var statuses []StatusUpdate

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}

			for _, raw := range change.Value.Messages {
				msg := IncomingMessage{
					ExternalID:  raw.ID,
					FromPhone:   raw.From,
					ProfileName: names[raw.From],
				}
				if raw.Text != nil {
					msg.Text = raw.Text.Body
				}
				if media := firstMedia(raw); media != nil {
					msg.MediaID = media.ID
					msg.MimeType = media.MimeType
					msg.Caption = media.Caption
				}
				if raw.Interactive != nil {
					if lr := raw.Interactive.ListReply; lr != nil {
						msg.InteractiveReplyID = lr.ID
						msg.InteractiveReplyTitle = lr.Title
						msg.Text = lr.Title
					} else if br := raw.Interactive.ButtonReply; br != nil {
						msg.InteractiveReplyID = br.ID
						msg.InteractiveReplyTitle = br.Title
						msg.Text = br.Title
					}
				}
				if msg.ExternalID == "" || msg.FromPhone == "" {
					continue
				}
				messages = append(messages, msg)
			}

			for _, st := range change.Value.Statuses {
				if st.ID == "" {
					continue
				}
				statuses = append(statuses, StatusUpdate{ExternalID: st.ID, Status: st.Status})
			}
		}
	}

	return messages, statuses, nil
}

func firstMedia(raw rawMessage) *rawMedia {
	switch {
	case raw.Image != nil:
		return raw.Image
	case raw.Video != nil:
		return raw.Video
	case raw.Audio != nil:
		return raw.Audio
	case raw.Document != nil:
		return raw.Document
	}
	return nil
}
