package dispatch

import "testing"

func TestClassifyVariants(t *testing.T) {
	five := 5
	nine := 9

	cases := []struct {
		name   string
		status int
		body   string
		kind   ResultKind
		text   string
		cnt    *int
	}{
		{"ok response field", 200, `{"status":"OK","response":"hi","count":5}`, ResultOK, "hi", &five},
		{"ok output field", 200, `{"status":"ok","output":"hi"}`, ResultOK, "hi", nil},
		{"ok message field no status", 200, `{"message":"hi"}`, ResultOK, "hi", nil},
		{"ok reply field", 200, `{"reply":"hi","usage":5}`, ResultOK, "hi", &five},
		{"prompt count alias", 200, `{"status":"OK","response":"hi","prompt_count":5}`, ResultOK, "hi", &five},
		{"email required", 403, `{"status":"EMAIL_REQUIRED"}`, ResultEmailRequired, "", nil},
		{"guest limit detail", 403, `{"detail":"GUEST_LIMIT_REACHED","count":5}`, ResultEmailRequired, "", &five},
		{"limit reached", 403, `{"status":"LIMIT_REACHED"}`, ResultLimitReached, "", nil},
		{"limit marker on 200", 200, `{"status":"LIMIT_REACHED","count":9}`, ResultLimitReached, "", &nine},
		{"user limit detail", 403, `{"detail":"user_limit_reached"}`, ResultLimitReached, "", nil},
		{"ok without text", 200, `{"status":"OK"}`, ResultUnrecognized, "", nil},
		{"unknown status", 200, `{"status":"TEAPOT","response":"hi"}`, ResultUnrecognized, "", nil},
		{"empty body", 200, ``, ResultUnrecognized, "", nil},
		{"not json", 502, `<html>bad gateway</html>`, ResultUnrecognized, "", nil},
		{"empty object", 200, `{}`, ResultUnrecognized, "", nil},
		{"error envelope 429", 429, `{"request_id":"r1","code":"rate_limited","message":"rate limit exceeded"}`, ResultUnrecognized, "", nil},
		{"error envelope 400", 400, `{"request_id":"r1","code":"bad_request","message":"message is required"}`, ResultUnrecognized, "", nil},
		{"error envelope 500", 500, `{"request_id":"r1","code":"internal_error","message":"internal server error"}`, ResultUnrecognized, "", nil},
		{"ok marker on error status", 500, `{"status":"OK","response":"hi"}`, ResultUnrecognized, "", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Classify(tc.status, []byte(tc.body))
			if res.Kind != tc.kind {
				t.Fatalf("kind = %d, want %d", res.Kind, tc.kind)
			}
			if res.Text != tc.text {
				t.Fatalf("text = %q, want %q", res.Text, tc.text)
			}
			switch {
			case tc.cnt == nil && res.Count != nil:
				t.Fatalf("count = %d, want nil", *res.Count)
			case tc.cnt != nil && res.Count == nil:
				t.Fatalf("count = nil, want %d", *tc.cnt)
			case tc.cnt != nil && *res.Count != *tc.cnt:
				t.Fatalf("count = %d, want %d", *res.Count, *tc.cnt)
			}
		})
	}
}
