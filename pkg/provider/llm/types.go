package llm

// Roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// UserMessage is shorthand for a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int
}

// ClampMaxTokens bounds requested to the model's output limit. A zero request
// or an unknown limit leaves the value unchanged.
func (c ModelCapabilities) ClampMaxTokens(requested int) int {
	if requested <= 0 || c.MaxOutputTokens <= 0 {
		return requested
	}
	return min(requested, c.MaxOutputTokens)
}
