package llm

import (
	"regexp"

	"github.com/invopop/jsonschema"
)

var nameInvalidChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Conversation roles accepted in Request.History.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior turn replayed to the model before the current prompt.
type Message struct {
	Role    string // "user" or "assistant"
	Name    string // Optional: participant name (user messages only)
	Content string
}

// GenerateSchema generates a strict JSON schema for T, suitable for
// OpenAI structured outputs.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}

// SanitizeName converts a username to a valid OpenAI name parameter.
// The name must match ^[a-zA-Z0-9_-]{1,64}$.
// Invalid characters are replaced with underscores, and the result is truncated to 64 characters.
func SanitizeName(username string) string {
	sanitized := nameInvalidChars.ReplaceAllString(username, "_")
	if len(sanitized) > 64 {
		sanitized = sanitized[:64]
	}
	return sanitized
}
