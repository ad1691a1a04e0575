package adapter

import (
	"bytes"
	"encoding/json"
	"strings"
)

// shape identifies which response schema a body matched.
type shape string

const (
	shapeNone     shape = "none"
	shapeMessages shape = "messages" // {msg, code, data:{messages:[...]}}
	shapeChoices  shape = "choices"  // {choices:[{message:{...}}]}
)

type envelope struct {
	Msg     any             `json:"msg"`
	Code    any             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Choices json.RawMessage `json:"choices"`
}

type dataMessages struct {
	Messages []json.RawMessage `json:"messages"`
}

// wireEntry is one chat message as the API echoes it. Content stays raw so a
// non-string sibling (multimodal parts, null) does not spoil the whole list.
type wireEntry struct {
	Role             string          `json:"role"`
	Content          json.RawMessage `json:"content"`
	ReasoningContent json.RawMessage `json:"reasoning_content"`
}

type choice struct {
	Message wireEntry `json:"message"`
}

// parsedReply is the assistant turn pulled out of a response body.
type parsedReply struct {
	shape     shape
	content   string
	reasoning string
	msg       any
	code      any
}

// parseReply tries the data.messages schema first, then choices. Entries are
// decoded one at a time and undecodable ones are skipped. A body that fits
// neither schema, or has no assistant entry, yields an empty reply.
func parseReply(raw json.RawMessage) parsedReply {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return parsedReply{shape: shapeNone}
	}

	if present(env.Data) {
		var data dataMessages
		if err := json.Unmarshal(env.Data, &data); err == nil {
			out := parsedReply{shape: shapeMessages, msg: env.Msg, code: env.Code}
			for _, item := range data.Messages {
				var m wireEntry
				if err := json.Unmarshal(item, &m); err != nil {
					continue
				}
				if m.Role == "assistant" {
					out.content = rawString(m.Content)
					out.reasoning = rawString(m.ReasoningContent)
					break
				}
			}
			return out
		}
	}

	if present(env.Choices) {
		var choices []json.RawMessage
		if err := json.Unmarshal(env.Choices, &choices); err == nil {
			out := parsedReply{shape: shapeChoices}
			for _, item := range choices {
				var c choice
				if err := json.Unmarshal(item, &c); err != nil {
					continue
				}
				if c.Message.Role == "assistant" {
					out.content = rawString(c.Message.Content)
					break
				}
			}
			return out
		}
	}

	return parsedReply{shape: shapeNone}
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// rawString returns raw as a string when it is a JSON string, else "".
func rawString(raw json.RawMessage) string {
	if !present(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// ReasoningFormat controls how reasoning_content is rendered after the answer.
type ReasoningFormat struct {
	Enabled bool
	Open    string
	Close   string
}

// DefaultReasoningFormat appends reasoning as a <thinking> block.
func DefaultReasoningFormat() ReasoningFormat {
	return ReasoningFormat{
		Enabled: true,
		Open:    "\n\n<thinking>\n",
		Close:   "\n</thinking>",
	}
}

// render produces the final reply text for p.
func (p parsedReply) render(f ReasoningFormat) string {
	if p.shape != shapeMessages {
		return p.content
	}

	content := strings.ReplaceAll(p.content, "\n\n", "\n")
	if f.Enabled && p.reasoning != "" {
		content += f.Open + p.reasoning + f.Close
	}
	return content
}
