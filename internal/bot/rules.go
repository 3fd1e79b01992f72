package bot

import (
	"context"
	"strings"

	"github.com/halodesk/support-platform/internal/model"
)

const defaultGreeting = "Hi! I'm the support assistant. Describe your issue, " +
	"or say \"agent\" to talk to a person."

const defaultFallback = "I couldn't help with that automatically. " +
	"Say \"agent\" and I'll connect you to a person."

// handoffKeywords trigger an immediate human handoff regardless of context.
var handoffKeywords = []string{"agent", "human", "person", "atendente", "operator"}

// RuleEngine is the default keyword-driven engine: greets on first contact,
// hands off on an explicit ask, and otherwise points at the handoff phrase.
type RuleEngine struct {
	Greeting string
	Fallback string
}

// NewRuleEngine creates a rule engine with the stock prompts.
func NewRuleEngine() *RuleEngine {
	return &RuleEngine{Greeting: defaultGreeting, Fallback: defaultFallback}
}

var _ Engine = (*RuleEngine)(nil)

func (e *RuleEngine) Name() string { return "rules" }

func (e *RuleEngine) Decide(ctx context.Context, conv *model.Conversation, msg *model.Message) (Decision, error) {
	text := strings.ToLower(strings.TrimSpace(msg.Body))
	if msg.InteractiveReplyID == "handoff" {
		return Decision{Action: ActionHandoff}, nil
	}
	for _, kw := range handoffKeywords {
		if strings.Contains(text, kw) {
			return Decision{Action: ActionHandoff}, nil
		}
	}
	if text == "" && msg.Attachment != nil {
		// media with no text: nothing sensible to answer automatically
		return Decision{Action: ActionHandoff}, nil
	}
	if conv.ClientLastMessageAt == nil {
		return Decision{Action: ActionReply, Reply: e.Greeting}, nil
	}
	return Decision{Action: ActionReply, Reply: e.Fallback}, nil
}
