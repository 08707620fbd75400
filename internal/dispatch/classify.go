package dispatch

import (
	"encoding/json"
	"net/http"
	"strings"
)

// ResultKind enumerates the closed set of shapes a chat response can be
// classified into. Anything the classifier cannot place lands in
// ResultUnrecognized rather than leaking a raw payload upward.
type ResultKind int

const (
	ResultUnrecognized ResultKind = iota
	ResultOK
	ResultEmailRequired
	ResultLimitReached
)

// Result is the normalized view of a chat response body.
//
// Fields:
//   - Kind: which variant the payload matched.
//   - Text: assistant reply text. Set only for ResultOK.
//   - Count: authoritative usage count when the server included one.
type Result struct {
	Kind  ResultKind
	Text  string
	Count *int
}

// wirePayload tolerates the field-name drift seen across backend versions.
// The reply may arrive under response, output, message, or reply; the
// counter under count, prompt_count, or usage; and the status marker under
// status or detail.
type wirePayload struct {
	Status string `json:"status"`
	Detail string `json:"detail"`

	Response string `json:"response"`
	Output   string `json:"output"`
	Message  string `json:"message"`
	Reply    string `json:"reply"`

	Count       *int `json:"count"`
	PromptCount *int `json:"prompt_count"`
	Usage       *int `json:"usage"`
}

func (p wirePayload) text() string {
	for _, s := range []string{p.Response, p.Output, p.Message, p.Reply} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (p wirePayload) count() *int {
	for _, c := range []*int{p.Count, p.PromptCount, p.Usage} {
		if c != nil {
			return c
		}
	}
	return nil
}

func (p wirePayload) marker() string {
	if p.Status != "" {
		return strings.ToUpper(strings.TrimSpace(p.Status))
	}
	return strings.ToUpper(strings.TrimSpace(p.Detail))
}

// Classify maps an HTTP status and raw response body onto the closed Result
// set. The blocked markers are honored on any status (the backend answers
// blocked sends with 403 and the same body shape as 200), but reply text is
// only admitted on a 2xx: server error envelopes carry their human-readable
// text under "message", the same field older backends use for the reply, and
// the status code is what disambiguates the two. A body that is not valid
// JSON, or that matches no known shape, classifies as ResultUnrecognized;
// the caller decides how to surface that.
func Classify(statusCode int, body []byte) Result {
	var p wirePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Result{Kind: ResultUnrecognized}
	}

	switch p.marker() {
	case "EMAIL_REQUIRED", "GUEST_LIMIT_REACHED":
		return Result{Kind: ResultEmailRequired, Count: p.count()}
	case "LIMIT_REACHED", "USER_LIMIT_REACHED":
		return Result{Kind: ResultLimitReached, Count: p.count()}
	case "OK", "":
		if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
			break
		}
		if text := p.text(); text != "" {
			return Result{Kind: ResultOK, Text: text, Count: p.count()}
		}
	}
	return Result{Kind: ResultUnrecognized}
}
