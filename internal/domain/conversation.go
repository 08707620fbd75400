package domain

// Message roles within a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one utterance in the local transcript. ClientMessageID is a
// stable random identifier generated before dispatch; the server deduplicates
// on it so a retried send never double-counts.
type ChatMessage struct {
	ClientMessageID string `json:"client_message_id"`
	Role            string `json:"role"`
	Content         string `json:"content"`

	// Failed marks a user message whose dispatch did not resolve after the
	// retry. The message stays in the transcript so the caller can retry it
	// explicitly; it is never silently removed.
	Failed bool `json:"failed,omitempty"`
}

// Conversation is the append-only transcript for one device session.
// SessionID is generated once per device and survives reloads and identity
// changes. The dispatcher is the sole mutator; other layers read.
type Conversation struct {
	SessionID string        `json:"session_id"`
	Messages  []ChatMessage `json:"messages"`
}

// Append adds a message at the end of the transcript. Ordering is strictly
// append-order; asynchronous arrivals never reorder it.
func (c *Conversation) Append(m ChatMessage) {
	c.Messages = append(c.Messages, m)
}

// MarkFailed attaches the failure marker to the message with the given client
// id. It reports whether a message was found.
func (c *Conversation) MarkFailed(clientMessageID string) bool {
	for i := range c.Messages {
		if c.Messages[i].ClientMessageID == clientMessageID {
			c.Messages[i].Failed = true
			return true
		}
	}
	return false
}
