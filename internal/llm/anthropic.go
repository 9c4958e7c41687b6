package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const anthropicAPI = "https://api.anthropic.com/v1/messages"

// AnthropicClient speaks the Messages API directly over HTTP.
type AnthropicClient struct {
	apiKey    string
	authToken string
	model     string
	endpoint  string
	http      *http.Client
}

func NewAnthropicClient(cfg ProviderConfig) *AnthropicClient {
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = anthropicAPI
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicClient{
		apiKey:    cfg.APIKey,
		authToken: cfg.AuthToken,
		model:     model,
		endpoint:  endpoint,
		http:      &http.Client{Timeout: timeout},
	}
}

type anthRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    []anthText    `json:"system,omitempty"`
	Messages  []anthMessage `json:"messages"`
	Tools     []anthTool    `json:"tools,omitempty"`
}

type anthText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []anthBlock
}

type anthBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthResponse struct {
	Content []anthBlock `json:"content"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *AnthropicClient) Chat(ctx context.Context, systemPrompt string, messages []Message, tools []Tool) (*Response, error) {
	system, msgs := toAnthropicMessages(systemPrompt, messages)
	reqBody := anthRequest{
		Model:     c.model,
		MaxTokens: 1024,
		System:    system,
		Messages:  msgs,
		Tools:     toAnthropicTools(tools),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("User-Agent", "daylog/1.0")

	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
		req.Header.Set("anthropic-beta", "oauth-2025-04-20")
	} else if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("anthropic chat: %s %s", resp.Status, string(respBody))
	}

	var anthResp anthResponse
	if err := json.Unmarshal(respBody, &anthResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	result := &Response{}
	for _, block := range anthResp.Content {
		switch block.Type {
		case "text":
			result.Content += block.Text
		case "tool_use":
			params := map[string]any{}
			_ = json.Unmarshal(block.Input, &params)
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:     block.ID,
				Name:   block.Name,
				Params: params,
			})
		}
	}

	return result, nil
}

func toAnthropicTools(tools []Tool) []anthTool {
	out := make([]anthTool, 0, len(tools))
	for _, t := range tools {
		schema := map[string]any{"type": "object"}
		if props, ok := t.Parameters["properties"]; ok {
			schema["properties"] = props
		}
		if req, ok := t.Parameters["required"]; ok {
			schema["required"] = req
		}
		out = append(out, anthTool{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return out
}

// toAnthropicMessages lifts pinned system turns into the system blocks; the
// Messages API only accepts user and assistant roles.
func toAnthropicMessages(systemPrompt string, messages []Message) ([]anthText, []anthMessage) {
	system := []anthText{{Type: "text", Text: systemPrompt}}
	var out []anthMessage
	for _, m := range messages {
		switch {
		case m.Role == RoleSystem:
			system = append(system, anthText{Type: "text", Text: m.Content})
		case m.ToolCallID != "":
			out = append(out, anthMessage{
				Role:    RoleUser,
				Content: []anthBlock{{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content}},
			})
		case m.Role == RoleAssistant && len(m.ToolCalls) > 0:
			var blocks []anthBlock
			if m.Content != "" {
				blocks = append(blocks, anthBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input, _ := json.Marshal(tc.Params)
				blocks = append(blocks, anthBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
			}
			out = append(out, anthMessage{Role: RoleAssistant, Content: blocks})
		default:
			out = append(out, anthMessage{Role: m.Role, Content: m.Content})
		}
	}
	return system, out
}
