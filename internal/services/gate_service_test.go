package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luminahq/go-chat-gate/internal/domain"
	"github.com/luminahq/go-chat-gate/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type fakeNotifier struct {
	mu      sync.Mutex
	updates []domain.QuotaUpdate
}

func (f *fakeNotifier) Publish(u domain.QuotaUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
}

func (f *fakeNotifier) all() []domain.QuotaUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.QuotaUpdate, len(f.updates))
	copy(out, f.updates)
	return out
}

type failingResponder struct{}

func (failingResponder) Respond(context.Context, []domain.StoredMessage, string, string) (string, error) {
	return "", errors.New("model down")
}

func guestReq(session, fingerprint, msg string) domain.ChatRequest {
	return domain.ChatRequest{
		Message:         msg,
		SessionID:       session,
		Fingerprint:     fingerprint,
		ClientMessageID: uuid.NewString(),
	}
}

func TestChatValidation(t *testing.T) {
	svc := NewGateService(newTestDB(t), CannedResponder{}, nil)
	ctx := context.Background()

	if _, err := svc.Chat(ctx, guestReq(uuid.NewString(), "fp-1", "   "), ""); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("err = %v, want ErrEmptyPrompt", err)
	}

	long := strings.Repeat("x", 2001)
	if _, err := svc.Chat(ctx, guestReq(uuid.NewString(), "fp-1", long), ""); !errors.Is(err, ErrTooLong) {
		t.Fatalf("err = %v, want ErrTooLong", err)
	}
}

func TestChatGuestCountsThenBlocks(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewGateService(newTestDB(t), CannedResponder{}, n)
	ctx := context.Background()
	session := uuid.NewString()

	for i := 1; i <= domain.GuestLimit; i++ {
		resp, err := svc.Chat(ctx, guestReq(session, "fp-1", fmt.Sprintf("msg %d", i)), "198.51.100.2")
		if err != nil {
			t.Fatalf("Chat %d: %v", i, err)
		}
		if resp.Status != domain.StatusOK || resp.Count == nil || *resp.Count != i {
			t.Fatalf("send %d: %+v", i, resp)
		}
	}

	resp, err := svc.Chat(ctx, guestReq(session, "fp-1", "one too many"), "198.51.100.2")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Status != domain.StatusEmailRequired {
		t.Fatalf("status = %q, want EMAIL_REQUIRED", resp.Status)
	}
	if resp.Response != "" {
		t.Fatalf("blocked send produced a reply: %q", resp.Response)
	}
	if resp.Count == nil || *resp.Count != domain.GuestLimit {
		t.Fatalf("count = %v", resp.Count)
	}

	ups := n.all()
	if len(ups) != domain.GuestLimit {
		t.Fatalf("notifier saw %d updates, want %d", len(ups), domain.GuestLimit)
	}
	last := ups[len(ups)-1]
	if last.Scope != domain.ScopeGuest || last.Key != "fp-1" || last.Count != domain.GuestLimit {
		t.Fatalf("last update = %+v", last)
	}
}

func TestChatReceiptReplayDoesNotRecount(t *testing.T) {
	svc := NewGateService(newTestDB(t), CannedResponder{}, nil)
	ctx := context.Background()
	req := guestReq(uuid.NewString(), "fp-1", "hello")

	first, err := svc.Chat(ctx, req, "")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	second, err := svc.Chat(ctx, req, "")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.Response != first.Response {
		t.Fatalf("replay reply = %q, want %q", second.Response, first.Response)
	}
	if *second.Count != *first.Count {
		t.Fatalf("replay count = %d, want %d", *second.Count, *first.Count)
	}

	count, _, err := svc.Quota(ctx, domain.ScopeGuest, "fp-1")
	if err != nil || count != 1 {
		t.Fatalf("quota after replay = %d, %v", count, err)
	}
}

func TestChatIdentifiedInheritsGuestHistory(t *testing.T) {
	svc := NewGateService(newTestDB(t), CannedResponder{}, nil)
	ctx := context.Background()
	session := uuid.NewString()

	for i := 0; i < domain.GuestLimit; i++ {
		if _, err := svc.Chat(ctx, guestReq(session, "fp-1", "guest send"), ""); err != nil {
			t.Fatalf("guest Chat: %v", err)
		}
	}

	// Sends 6..8 succeed under the identified allowance.
	for want := domain.GuestLimit + 1; want <= domain.IdentifiedLimit; want++ {
		req := guestReq(session, "fp-1", "identified send")
		req.Email = "ada@example.com"
		resp, err := svc.Chat(ctx, req, "")
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if resp.Status != domain.StatusOK || *resp.Count != want {
			t.Fatalf("send = %+v, want count %d", resp, want)
		}
	}

	req := guestReq(session, "fp-1", "over the line")
	req.Email = "ada@example.com"
	resp, err := svc.Chat(ctx, req, "")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Status != domain.StatusLimitReached {
		t.Fatalf("status = %q, want LIMIT_REACHED", resp.Status)
	}
}

func TestChatClaimsSessionAndPublishesUserID(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewGateService(newTestDB(t), CannedResponder{}, n)
	ctx := context.Background()
	session := uuid.NewString()

	req := guestReq(session, "fp-1", "hello from a user")
	req.UserID = "u1"
	req.Email = "ada@example.com"
	if _, err := svc.Chat(ctx, req, ""); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	row, err := repo.GetSession(ctx, svc.DB, session)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if row.UserID != "u1" || !row.EmailRecorded {
		t.Fatalf("session = %+v", row)
	}

	var sawEmailKey bool
	for _, u := range n.all() {
		if u.Scope == domain.ScopeUser && u.Key == "ada@example.com" {
			sawEmailKey = true
			if u.UserID != "u1" {
				t.Fatalf("email-keyed update carried user id %q", u.UserID)
			}
		}
	}
	if !sawEmailKey {
		t.Fatal("no email-keyed update published")
	}
}

func TestChatAutoTitlesFirstMessage(t *testing.T) {
	svc := NewGateService(newTestDB(t), CannedResponder{}, nil)
	ctx := context.Background()
	session := uuid.NewString()

	if _, err := svc.Chat(ctx, guestReq(session, "fp-1", "tell me about the weather in lisbon"), ""); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	row, err := repo.GetSession(ctx, svc.DB, session)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if row.Title == "" || row.Title == defaultTitleNew {
		t.Fatalf("title = %q, want auto-generated", row.Title)
	}
	first := row.Title

	if _, err := svc.Chat(ctx, guestReq(session, "fp-1", "something completely different"), ""); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	row, _ = repo.GetSession(ctx, svc.DB, session)
	if row.Title != first {
		t.Fatalf("second send retitled the session to %q", row.Title)
	}
}

func TestChatResponderFailureDoesNotCount(t *testing.T) {
	svc := NewGateService(newTestDB(t), failingResponder{}, nil)
	ctx := context.Background()

	if _, err := svc.Chat(ctx, guestReq(uuid.NewString(), "fp-1", "hello"), ""); !errors.Is(err, ErrAnswerFailed) {
		t.Fatalf("err = %v, want ErrAnswerFailed", err)
	}
	count, _, err := svc.Quota(ctx, domain.ScopeGuest, "fp-1")
	if err != nil || count != 0 {
		t.Fatalf("quota = %d, %v, want 0", count, err)
	}
}

func TestRegisterEmailSeedsUserCounter(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewGateService(newTestDB(t), CannedResponder{}, n)
	ctx := context.Background()
	session := uuid.NewString()

	for i := 0; i < 3; i++ {
		if _, err := svc.Chat(ctx, guestReq(session, "fp-1", "guest send"), ""); err != nil {
			t.Fatalf("Chat: %v", err)
		}
	}

	err := svc.RegisterEmail(ctx, domain.RegisterEmailRequest{
		SessionID:   session,
		Fingerprint: "fp-1",
		Email:       "  Ada@Example.com ",
	})
	if err != nil {
		t.Fatalf("RegisterEmail: %v", err)
	}

	count, found, err := svc.Quota(ctx, domain.ScopeUser, "ada@example.com")
	if err != nil || !found || count != 3 {
		t.Fatalf("quota = %d, %v, %v", count, found, err)
	}

	row, err := repo.GetSession(ctx, svc.DB, session)
	if err != nil || !row.EmailRecorded {
		t.Fatalf("session = %+v, %v", row, err)
	}
}

func TestRegisterEmailRejectsGarbage(t *testing.T) {
	svc := NewGateService(newTestDB(t), CannedResponder{}, nil)
	for _, bad := range []string{"", "  ", "@", "no-at-sign"} {
		err := svc.RegisterEmail(context.Background(), domain.RegisterEmailRequest{Email: bad})
		if !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("email %q: err = %v, want ErrInvalidEmail", bad, err)
		}
	}
}

func TestQuotaUnknownSubjects(t *testing.T) {
	svc := NewGateService(newTestDB(t), CannedResponder{}, nil)
	ctx := context.Background()

	if _, found, err := svc.Quota(ctx, domain.ScopeGuest, "fp-never"); err != nil || found {
		t.Fatalf("guest found = %v, %v", found, err)
	}
	if _, found, err := svc.Quota(ctx, domain.ScopeUser, "nobody@example.com"); err != nil || found {
		t.Fatalf("user found = %v, %v", found, err)
	}
	if _, _, err := svc.Quota(ctx, "planet", "earth"); err == nil {
		t.Fatal("unknown scope accepted")
	}
}

func TestHistory(t *testing.T) {
	svc := NewGateService(newTestDB(t), CannedResponder{}, nil)
	ctx := context.Background()
	session := uuid.NewString()

	if _, err := svc.History(ctx, uuid.NewString()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}

	if _, err := svc.Chat(ctx, guestReq(session, "fp-1", "hello"), ""); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	rows, err := svc.History(ctx, session)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(rows) != 2 || rows[0].Role != domain.RoleUser || rows[1].Role != domain.RoleAssistant {
		t.Fatalf("history = %+v", rows)
	}
}

func TestTitleHelpers(t *testing.T) {
	if got := titleFromPrompt("tell me about the weather in lisbon", 6, 60); got != "Weather Lisbon" {
		t.Fatalf("title = %q", got)
	}
	if got := titleFromPrompt("   ", 6, 60); got != "" {
		t.Fatalf("blank prompt title = %q", got)
	}
	if !shouldAutoTitle("new chat") || !shouldAutoTitle("") || shouldAutoTitle("Weather Lisbon") {
		t.Fatal("shouldAutoTitle mismatch")
	}
	if got := clipTitle(strings.Repeat("ab", 40), 10); len([]rune(got)) != 10 {
		t.Fatalf("clip = %q", got)
	}
}
