// Command chatgate is an interactive terminal client for the usage gate. It
// resolves the caller's identity tier, keeps the local quota mirror fresh
// over the watch stream, and runs each message through the dispatch
// pipeline.
//
// Commands:
//
//	/email <address>           capture an email and unlock the identified allowance
//	/signin <user_id> <email>  attach an authenticated session
//	/signout                   drop the session and captured email
//	/instruction <text>        set the system instruction sent with each message
//	/whoami                    show the resolved identity
//	/quota                     show the current counter
//	/history                   print the transcript
//	/quit                      exit
//
// Anything else is sent as a chat message.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/luminahq/go-chat-gate/internal/config"
	"github.com/luminahq/go-chat-gate/internal/dispatch"
	"github.com/luminahq/go-chat-gate/internal/domain"
	"github.com/luminahq/go-chat-gate/internal/gate"
	"github.com/luminahq/go-chat-gate/internal/identity"
	"github.com/luminahq/go-chat-gate/internal/localstate"
	"github.com/luminahq/go-chat-gate/internal/quota"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	setupLogger(cfg)

	state, err := localstate.Open(cfg.Client.StatePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Client.StatePath).Msg("open local state")
	}

	registrar := identity.NewHTTPRegistrar(cfg.Client.BaseURL)
	resolver := identity.NewResolver(state, registrar, identity.WithLogger(log.Logger))

	backend := quota.NewHTTPBackend(cfg.Client.BaseURL)
	qc := quota.NewClient(backend,
		quota.WithClientLogger(log.Logger),
		quota.WithUpdateHook(func(u domain.QuotaUpdate) {
			if u.UserID != "" {
				resolver.ObserveResolvedUserID(u.UserID)
			}
		}),
	)
	defer qc.Close()

	d := dispatch.NewDispatcher(resolver, qc, state, cfg.Client.BaseURL,
		dispatch.WithSendTimeout(cfg.Client.SendTimeout),
		dispatch.WithRetryBackoff(cfg.Client.RetryBackoff),
		dispatch.WithDispatcherLogger(log.Logger),
	)

	ctx := context.Background()
	resync(ctx, resolver, qc)
	printQuota(ctx, resolver, qc)

	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return
		case line == "/whoami":
			id := resolver.Resolve(ctx)
			fmt.Printf("tier=%s subject=%s email=%s\n", id.Tier, id.SubjectKey(), id.Email)
		case line == "/quota":
			printQuota(ctx, resolver, qc)
		case line == "/history":
			for _, m := range d.Transcript() {
				marker := ""
				if m.Failed {
					marker = " [failed]"
				}
				fmt.Printf("%s: %s%s\n", m.Role, m.Content, marker)
			}
		case line == "/signout":
			if err := resolver.SignOut(ctx); err != nil {
				fmt.Println("not signed in")
				continue
			}
			resync(ctx, resolver, qc)
			fmt.Println("signed out")
		case strings.HasPrefix(line, "/email "):
			addr := strings.TrimSpace(strings.TrimPrefix(line, "/email "))
			if err := resolver.SubmitEmail(ctx, addr); err != nil {
				fmt.Println("invalid email")
				continue
			}
			resync(ctx, resolver, qc)
			fmt.Println("email captured, allowance extended")
		case strings.HasPrefix(line, "/signin "):
			parts := strings.Fields(strings.TrimPrefix(line, "/signin "))
			if len(parts) != 2 {
				fmt.Println("usage: /signin <user_id> <email>")
				continue
			}
			resolver.SetSession(domain.AuthSession{UserID: parts[0], Email: parts[1]})
			resync(ctx, resolver, qc)
			fmt.Println("signed in")
		case strings.HasPrefix(line, "/instruction "):
			text := strings.TrimSpace(strings.TrimPrefix(line, "/instruction "))
			if err := state.SetSystemInstruction(ctx, text); err != nil {
				fmt.Println("could not persist instruction")
				continue
			}
			fmt.Println("instruction set")
		default:
			send(ctx, d, line)
		}
	}
}

// send runs one message through the dispatcher and prints the outcome.
func send(ctx context.Context, d *dispatch.Dispatcher, text string) {
	out, err := d.Send(ctx, text)
	if err != nil {
		switch err {
		case dispatch.ErrEmptyMessage:
			fmt.Println("nothing to send")
		case dispatch.ErrBusy:
			fmt.Println("still sending the previous message")
		default:
			fmt.Printf("send failed: %v\n", err)
		}
		return
	}

	switch out.Kind {
	case dispatch.OutcomeDelivered:
		fmt.Println(out.Reply.Content)
	case dispatch.OutcomeBlocked:
		if out.Blocked == gate.BlockedFinal {
			fmt.Println("message limit reached for this account")
		} else {
			fmt.Println("guest limit reached, use /email <address> to continue")
		}
	case dispatch.OutcomeDiscarded:
		fmt.Println("identity changed while sending, message kept but no reply")
	case dispatch.OutcomeFailed:
		fmt.Printf("message not delivered (%v), it stays in /history marked failed\n", out.Err)
	}
}

// resync points the quota mirror and watch stream at the current subject.
func resync(ctx context.Context, resolver *identity.Resolver, qc *quota.Client) {
	id := resolver.Resolve(ctx)
	qc.Fetch(ctx, id)
	if err := qc.Subscribe(ctx, id); err != nil {
		log.Warn().Err(err).Str("subject", id.SubjectKey()).Msg("quota watch unavailable")
	}
}

func printQuota(ctx context.Context, resolver *identity.Resolver, qc *quota.Client) {
	id := resolver.Resolve(ctx)
	q := qc.Current()
	if q.SubjectKey != id.SubjectKey() {
		q = qc.Fetch(ctx, id)
	}
	note := ""
	if q.Degraded {
		note = " (unconfirmed)"
	}
	fmt.Printf("%d of %d messages used, %d left%s\n", q.Count, q.Limit, q.Remaining(), note)
}

// setupLogger configures the global zerolog logger from config. The CLI
// keeps logs on stderr so replies stay clean on stdout.
func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
