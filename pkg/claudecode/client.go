package claudecode

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Client is the interface for interacting with Claude Code
type Client interface {
	// Query starts one CLI run and streams its messages.
	Query(ctx context.Context, prompt string, options *Options) (*Stream, error)
}

type internalClient struct{}

// NewClient creates a new Claude Code client
func NewClient() Client {
	return &internalClient{}
}

func (c *internalClient) Query(ctx context.Context, prompt string, options *Options) (*Stream, error) {
	if options == nil {
		options = &Options{}
	}
	t := newSubprocessTransport(prompt, options)
	if err := t.start(ctx); err != nil {
		return nil, err
	}
	return t.stream, nil
}

// Transcript is the folded outcome of a Stream.
type Transcript struct {
	Text      string
	ToolCalls int
	Result    *ResultMessage
}

// Collect drains s into a Transcript. The returned error is the process error, if any.
func Collect(s *Stream) (*Transcript, error) {
	var (
		tr    Transcript
		parts []string
	)
	for msg := range s.Messages() {
		switch m := msg.(type) {
		case AssistantMessage:
			for _, block := range m.Content {
				switch b := block.(type) {
				case TextBlock:
					if strings.TrimSpace(b.Text) != "" {
						parts = append(parts, b.Text)
					}
				case ToolUseBlock:
					tr.ToolCalls++
				}
			}
		case ResultMessage:
			r := m
			tr.Result = &r
		}
	}
	tr.Text = strings.Join(parts, "\n")
	if tr.Result != nil && tr.Result.Result != nil && *tr.Result.Result != "" {
		tr.Text = *tr.Result.Result
	}
	return &tr, s.Err()
}

type rawMessage struct {
	Type    string          `json:"type"`
	Subtype string          `json:"subtype"`
	Content json.RawMessage `json:"content"`
	Message *struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
	Data map[string]any `json:"data"`
}

func parseMessage(line []byte) (Message, error) {
	var raw rawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, &JSONDecodeError{Line: string(line), Err: err}
	}
	content := raw.Content
	if raw.Message != nil && len(raw.Message.Content) > 0 {
		content = raw.Message.Content
	}

	switch raw.Type {
	case "user":
		var text string
		if err := json.Unmarshal(content, &text); err == nil {
			return UserMessage{Content: text}, nil
		}
		blocks, err := parseContentBlocks(content)
		if err != nil {
			return nil, err
		}
		return UserMessage{Blocks: blocks}, nil

	case "assistant":
		blocks, err := parseContentBlocks(content)
		if err != nil {
			return nil, err
		}
		return AssistantMessage{Content: blocks}, nil

	case "system":
		data := raw.Data
		if data == nil {
			data = map[string]any{}
		}
		return SystemMessage{Subtype: raw.Subtype, Data: data}, nil

	case "result":
		var result ResultMessage
		if err := json.Unmarshal(line, &result); err != nil {
			return nil, &JSONDecodeError{Line: string(line), Err: err}
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unknown message type: %q", raw.Type)
	}
}

func parseContentBlocks(data json.RawMessage) ([]ContentBlock, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("content is not a block list: %w", err)
	}
	blocks := make([]ContentBlock, 0, len(raws))
	for _, r := range raws {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(r, &head); err != nil {
			return nil, fmt.Errorf("invalid content block: %w", err)
		}
		switch head.Type {
		case "text":
			var b TextBlock
			if err := json.Unmarshal(r, &b); err != nil {
				return nil, err
			}
			blocks = append(blocks, b)
		case "tool_use":
			var b ToolUseBlock
			if err := json.Unmarshal(r, &b); err != nil {
				return nil, err
			}
			blocks = append(blocks, b)
		case "tool_result":
			var b ToolResultBlock
			if err := json.Unmarshal(r, &b); err != nil {
				return nil, err
			}
			blocks = append(blocks, b)
		default:
			// thinking and future block types carry nothing we report on
		}
	}
	return blocks, nil
}
