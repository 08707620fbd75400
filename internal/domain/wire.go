package domain

// Wire format of the conversation endpoint. The request shape is shared by
// the client dispatcher and the reference backend; response parsing on the
// client side is deliberately looser (see dispatch.Classify) because older
// backend versions used different field names.

// Status values carried in the conversation response.
const (
	StatusOK            = "OK"
	StatusEmailRequired = "EMAIL_REQUIRED"
	StatusLimitReached  = "LIMIT_REACHED"
)

// ChatRequest is the JSON body posted to the conversation endpoint.
// Exactly one of Email / UserID is populated, according to the resolved tier:
// authenticated sends user_id, email-identified sends email (until the server
// has durably recorded it for this session), anonymous sends neither.
type ChatRequest struct {
	Message           string `json:"message"`
	SessionID         string `json:"session_id"`
	Fingerprint       string `json:"fingerprint"`
	SystemInstruction string `json:"system_instruction,omitempty"`
	Email             string `json:"email,omitempty"`
	UserID            string `json:"user_id,omitempty"`
	ClientMessageID   string `json:"client_message_id"`
}

// ChatResponse is the body the reference backend produces. Count, when
// present, is the authoritative usage counter after this send and overwrites
// any locally tracked value.
type ChatResponse struct {
	Status   string `json:"status"`
	Response string `json:"response,omitempty"`
	Count    *int   `json:"count,omitempty"`
}

// RegisterEmailRequest is the fire-and-forget email capture side channel.
// No response is awaited for gating purposes.
type RegisterEmailRequest struct {
	SessionID   string `json:"session_id"`
	Fingerprint string `json:"fingerprint"`
	Email       string `json:"email"`
}
