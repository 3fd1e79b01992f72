package bot

import (
	"context"
	"strings"

	"github.com/halodesk/support-platform/internal/model"
	"github.com/halodesk/support-platform/internal/store"
	"github.com/halodesk/support-platform/pkg/logger"
)

// handoffMarker is the token the model is instructed to emit when the
// customer needs a human.
const handoffMarker = "[HANDOFF]"

const systemPrompt = "You are a first-line customer support assistant on WhatsApp. " +
	"Answer briefly and politely. If the customer asks for a person, is angry, " +
	"or you cannot resolve the issue, reply with exactly " + handoffMarker + "."

// ChatMessage is one turn of model context.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a provider-agnostic completion request.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// CompletionResponse is a provider-agnostic completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Completer is the narrow LLM provider contract.
type Completer interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	Name() string
}

// LLMEngine answers with a language model, building context from the recent
// conversation history. It emits a handoff when the model asks for one.
type LLMEngine struct {
	completer Completer
	messages  store.MessageRepository
	model     string
	history   int
	logger    *logger.Logger
}

// NewLLMEngine creates an LLM-backed engine.
func NewLLMEngine(completer Completer, messages store.MessageRepository, modelName string, log *logger.Logger) *LLMEngine {
	return &LLMEngine{
		completer: completer,
		messages:  messages,
		model:     modelName,
		history:   20,
		logger:    log,
	}
}

var _ Engine = (*LLMEngine)(nil)

func (e *LLMEngine) Name() string { return "llm:" + e.completer.Name() }

func (e *LLMEngine) Decide(ctx context.Context, conv *model.Conversation, msg *model.Message) (Decision, error) {
	history, err := e.messages.ListByConversation(ctx, conv.ID, e.history)
	if err != nil {
		return Decision{}, err
	}

	chat := []ChatMessage{{Role: "system", Content: systemPrompt}}
	for _, m := range history {
		if m.Body == "" {
			continue
		}
		role := "assistant"
		if m.FromContact() {
			role = "user"
		}
		chat = append(chat, ChatMessage{Role: role, Content: m.Body})
	}

	resp, err := e.completer.Complete(ctx, &CompletionRequest{
		Model:     e.model,
		Messages:  chat,
		MaxTokens: 512,
	})
	if err != nil {
		return Decision{}, err
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" || strings.Contains(content, handoffMarker) {
		return Decision{Action: ActionHandoff}, nil
	}
	return Decision{Action: ActionReply, Reply: content}, nil
}
