package llm

import "context"

// Role is the speaker of one message in a completion context.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Context is the full input of one completion request.
type Context struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// System returns the concatenated system messages.
func (c Context) System() string {
	out := ""
	for _, m := range c.Messages {
		if m.Role != RoleSystem {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += m.Content
	}
	return out
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text         string
	Usage        Usage
	FinishReason string
}

// Adapter is the completion client contract: given the whole conversation,
// produce the assistant's next reply.
type Adapter interface {
	Generate(ctx context.Context, input Context) (Response, error)
	Name() string
}
