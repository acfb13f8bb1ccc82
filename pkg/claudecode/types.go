package claudecode

// PermissionMode represents the permission handling mode for tools
type PermissionMode string

const (
	PermissionModeDefault           PermissionMode = "default"
	PermissionModeAcceptEdits       PermissionMode = "acceptEdits"
	PermissionModeBypassPermissions PermissionMode = "bypassPermissions"
)

// ContentBlock is an interface for different types of content blocks
type ContentBlock interface {
	isContentBlock()
}

type TextBlock struct {
	Text string `json:"text"`
}

func (TextBlock) isContentBlock() {}

type ToolUseBlock struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

func (ToolUseBlock) isContentBlock() {}

type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Content   any    `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

func (ToolResultBlock) isContentBlock() {}

// Message is one line of the CLI's stream-json output.
type Message interface {
	isMessage()
}

// UserMessage carries either plain text or tool results fed back to the model.
type UserMessage struct {
	Content string
	Blocks  []ContentBlock
}

func (UserMessage) isMessage() {}

type AssistantMessage struct {
	Content []ContentBlock
}

func (AssistantMessage) isMessage() {}

type SystemMessage struct {
	Subtype string
	Data    map[string]any
}

func (SystemMessage) isMessage() {}

// ResultMessage is the final line of a run.
type ResultMessage struct {
	Subtype       string         `json:"subtype"`
	DurationMs    int            `json:"duration_ms"`
	DurationAPIMs int            `json:"duration_api_ms"`
	IsError       bool           `json:"is_error"`
	NumTurns      int            `json:"num_turns"`
	SessionID     string         `json:"session_id"`
	TotalCostUSD  *float64       `json:"total_cost_usd,omitempty"`
	Usage         map[string]any `json:"usage,omitempty"`
	Result        *string        `json:"result,omitempty"`
}

func (ResultMessage) isMessage() {}

// Options configures one CLI invocation. Zero values leave the CLI defaults in place.
type Options struct {
	// CLIPath overrides the lookup of the claude binary.
	CLIPath            string
	Model              string
	MaxTurns           int
	AppendSystemPrompt string
	AllowedTools       []string
	PermissionMode     PermissionMode
	Cwd                string
	// Env is appended to the inherited environment.
	Env []string
}
