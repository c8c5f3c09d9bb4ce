package handlers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/edgard/selfreportbot/internal/chat"
	"github.com/edgard/selfreportbot/internal/config"
	"github.com/edgard/selfreportbot/internal/database"
	"github.com/edgard/selfreportbot/internal/logger"
	"github.com/edgard/selfreportbot/internal/report"
)

// fakeTransport records every call in order.
type fakeTransport struct {
	mu            sync.Mutex
	calls         []string
	texts         []string
	reactions     []string
	contacts      map[chat.ChatID][]chat.ContactID
	failContacts  map[chat.ContactID]bool
	failDelete    bool
	failContactsQ bool
	failSend      bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		contacts:     make(map[chat.ChatID][]chat.ContactID),
		failContacts: make(map[chat.ContactID]bool),
	}
}

func (f *fakeTransport) log(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeTransport) SendText(_ context.Context, account chat.AccountID, chatID chat.ChatID, text string) (chat.MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("send_text %d %d", account, chatID)
	if f.failSend {
		return 0, fmt.Errorf("send failed")
	}
	f.texts = append(f.texts, text)
	return chat.MessageID(1000 + len(f.texts)), nil
}

func (f *fakeTransport) SendReaction(_ context.Context, account chat.AccountID, msg *chat.Message, reactions ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("send_reaction %d %d", account, msg.ID)
	f.reactions = append(f.reactions, reactions...)
	return nil
}

func (f *fakeTransport) GetChatContacts(_ context.Context, account chat.AccountID, chatID chat.ChatID) ([]chat.ContactID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("get_chat_contacts %d %d", account, chatID)
	if f.failContactsQ {
		return nil, fmt.Errorf("rpc failure")
	}
	return f.contacts[chatID], nil
}

func (f *fakeTransport) DeleteChat(_ context.Context, account chat.AccountID, chatID chat.ChatID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("delete_chat %d %d", account, chatID)
	if f.failDelete {
		return fmt.Errorf("chat busy")
	}
	return nil
}

func (f *fakeTransport) DeleteContact(_ context.Context, account chat.AccountID, contactID chat.ContactID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("delete_contact %d %d", account, contactID)
	if f.failContacts[contactID] {
		return fmt.Errorf("contact %d is blocked", contactID)
	}
	return nil
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeLedger struct {
	mu          sync.Mutex
	submissions []database.Submission
	cleanups    []database.Cleanup
	err         error
}

func (l *fakeLedger) RecordSubmission(_ context.Context, s *database.Submission) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submissions = append(l.submissions, *s)
	return l.err
}

func (l *fakeLedger) RecordCleanup(_ context.Context, c *database.Cleanup) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanups = append(l.cleanups, *c)
	return l.err
}

type failingAppender struct{ err error }

func (a failingAppender) Append(context.Context, string, report.Report) (int, error) {
	return 0, a.err
}

func testConfig() *config.Config {
	return &config.Config{
		Reports: config.ReportsConfig{MaxAttachmentBytes: 1 << 20},
		Messages: config.MessagesConfig{
			Thanks:    config.DefaultThanksMessage,
			Rejection: config.DefaultRejectionMessage,
			Reaction:  config.DefaultReaction,
		},
	}
}

type testEnv struct {
	transport *fakeTransport
	ledger    *fakeLedger
	store     *report.Store
	deps      HandlerDeps
	clock     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := report.NewStore(report.Options{Dir: t.TempDir() + "/reports"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	env := &testEnv{
		transport: newFakeTransport(),
		ledger:    &fakeLedger{},
		store:     store,
		clock:     time.Unix(1700000000, 0),
	}
	env.deps = HandlerDeps{
		Logger:    logger.Discard(),
		Config:    testConfig(),
		Reports:   store,
		Ledger:    env.ledger,
		Transport: env.transport,
		Now: func() time.Time {
			env.clock = env.clock.Add(time.Second)
			return env.clock
		},
	}
	return env
}
