package llm

import "encoding/json"

// charsPerToken is a rough average that is good enough for context
// budgeting; real tokenizers vary.
const charsPerToken = 4

// EstimateTokens returns a rough token count for s, rounded up.
func EstimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// EstimateMessageTokens counts content, tool calls and per-message framing.
func EstimateMessageTokens(m Message) int {
	tokens := 4 // role and delimiters
	tokens += EstimateTokens(m.Content)
	for _, tc := range m.ToolCalls {
		tokens += EstimateTokens(tc.Name) + 4
		if params, err := json.Marshal(tc.Params); err == nil {
			tokens += EstimateTokens(string(params))
		}
	}
	if m.ToolCallID != "" {
		tokens += EstimateTokens(m.ToolCallID) + 2
	}
	return tokens
}

func EstimateMessagesTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateMessageTokens(m)
	}
	return total
}

// EstimateToolsTokens counts tool schemas, which are sent with every request.
func EstimateToolsTokens(tools []Tool) int {
	total := 0
	for _, t := range tools {
		total += EstimateTokens(t.Name) + EstimateTokens(t.Description) + 10
		if schema, err := json.Marshal(t.Parameters); err == nil {
			total += EstimateTokens(string(schema))
		}
	}
	return total
}

// Pinned separates the first system turn from the rest of the history.
// Any later system turns are dropped.
func Pinned(messages []Message) (pinned *Message, rest []Message) {
	for i := range messages {
		m := messages[i]
		if m.Role == RoleSystem {
			if pinned == nil {
				pinned = &m
			}
			continue
		}
		rest = append(rest, m)
	}
	return pinned, rest
}

func withPinned(pinned *Message, rest []Message) []Message {
	if pinned == nil {
		return rest
	}
	return append([]Message{*pinned}, rest...)
}

// CapHistory keeps the pinned instruction turn plus roughly the last turns
// messages. The cut moves forward to a group boundary so a tool call is
// never separated from its results.
func CapHistory(messages []Message, turns int) []Message {
	pinned, rest := Pinned(messages)
	if turns <= 0 || len(rest) <= turns {
		return withPinned(pinned, rest)
	}

	groups := groupMessages(rest)
	count := 0
	keepFrom := len(groups)
	for keepFrom > 0 && count+len(groups[keepFrom-1].messages) <= turns {
		keepFrom--
		count += len(groups[keepFrom].messages)
	}
	if keepFrom == len(groups) {
		keepFrom = len(groups) - 1 // the active turn always survives
	}

	var kept []Message
	for _, g := range groups[keepFrom:] {
		kept = append(kept, g.messages...)
	}
	return withPinned(pinned, kept)
}

// TrimMessages drops the oldest groups until the history fits maxTokens.
// The pinned turn and the most recent group are always kept.
func TrimMessages(messages []Message, maxTokens int) []Message {
	if len(messages) == 0 {
		return messages
	}
	pinned, rest := Pinned(messages)
	if pinned != nil {
		maxTokens -= EstimateMessageTokens(*pinned)
	}

	groups := groupMessages(rest)
	total := 0
	for _, g := range groups {
		total += g.tokens
	}
	if total <= maxTokens {
		return withPinned(pinned, rest)
	}

	drop := 0
	for drop < len(groups)-1 && total > maxTokens {
		total -= groups[drop].tokens
		drop++
	}

	var kept []Message
	for _, g := range groups[drop:] {
		kept = append(kept, g.messages...)
	}
	return withPinned(pinned, kept)
}

// messageGroup is kept or dropped as a whole: an assistant tool call plus
// every tool result that follows it, or any single other message.
type messageGroup struct {
	messages []Message
	tokens   int
}

func groupMessages(messages []Message) []messageGroup {
	var groups []messageGroup
	for i := 0; i < len(messages); {
		g := messageGroup{messages: []Message{messages[i]}, tokens: EstimateMessageTokens(messages[i])}
		toolCall := messages[i].Role == RoleAssistant && len(messages[i].ToolCalls) > 0
		i++
		for toolCall && i < len(messages) && messages[i].ToolCallID != "" {
			g.messages = append(g.messages, messages[i])
			g.tokens += EstimateMessageTokens(messages[i])
			i++
		}
		groups = append(groups, g)
	}
	return groups
}
