package adapter

import "aigc-bridge/internal/llm"

// Kind tags who authored a Message in the conversation.
type Kind string

const (
	KindSystem Kind = "system"
	KindHuman  Kind = "human"
	KindAI     Kind = "ai"
)

// Message is one turn of the caller's conversation history.
type Message struct {
	Kind    Kind   `json:"kind"`
	Content string `json:"content"`
}

func SystemMessage(content string) Message { return Message{Kind: KindSystem, Content: content} }

func HumanMessage(content string) Message { return Message{Kind: KindHuman, Content: content} }

func AIMessage(content string) Message { return Message{Kind: KindAI, Content: content} }

// WireRole maps a message kind to the API role. Anything that is not system or
// ai (tool output, function results, untyped chat messages) is sent as user.
func WireRole(k Kind) string {
	switch k {
	case KindSystem:
		return llm.RoleSystem
	case KindAI:
		return llm.RoleAssistant
	default:
		return llm.RoleUser
	}
}

// ToWire converts messages to the API format, preserving order.
func ToWire(messages []Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.Message{Role: WireRole(m.Kind), Content: m.Content})
	}
	return out
}
