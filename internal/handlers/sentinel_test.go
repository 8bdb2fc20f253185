package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/axioma-ai-labs/guardy/internal/antiflood"
	"github.com/axioma-ai-labs/guardy/internal/bot"
	"github.com/axioma-ai-labs/guardy/internal/config"
	"github.com/axioma-ai-labs/guardy/internal/db"
	"github.com/axioma-ai-labs/guardy/internal/sched"
	"github.com/axioma-ai-labs/guardy/internal/spam"
)

// recordingAPIClient answers every Bot API call with an ok response and
// remembers which methods were called.
type recordingAPIClient struct {
	mu      sync.Mutex
	methods []string
}

func (c *recordingAPIClient) Do(req *http.Request) (*http.Response, error) {
	parts := strings.Split(req.URL.Path, "/")
	method := parts[len(parts)-1]
	c.mu.Lock()
	c.methods = append(c.methods, method)
	c.mu.Unlock()

	body := `{"ok":true,"result":true}`
	if method == "getMe" {
		body = `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"guardy","username":"guardy_bot"}}`
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func (c *recordingAPIClient) called(method string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.methods {
		if m == method {
			return true
		}
	}
	return false
}

// stubDB satisfies db.Client with no-ops so handler tests can run the
// bookkeeping paths without a database.
type stubDB struct{}

func (stubDB) Close() error { return nil }
func (stubDB) GetGroupConfig(context.Context, int64) (*db.GroupConfig, error) {
	return nil, db.ErrNotFound
}
func (stubDB) SetGroupConfig(context.Context, *db.GroupConfig) error { return nil }
func (stubDB) DeleteGroupConfig(context.Context, int64) error        { return nil }
func (stubDB) GetVerification(context.Context, int64, int64) (*db.VerificationRecord, error) {
	return nil, db.ErrNotFound
}
func (stubDB) GetLatestVerification(context.Context, int64) (*db.VerificationRecord, error) {
	return nil, db.ErrNotFound
}
func (stubDB) PutVerification(context.Context, *db.VerificationRecord) error { return nil }
func (stubDB) DeleteVerification(context.Context, int64, int64) error        { return nil }
func (stubDB) InitVoting(context.Context, int64, int, int) error             { return nil }
func (stubDB) AddVoter(context.Context, int64, int, int64) (db.VoteResult, error) {
	return db.VoteAccepted, nil
}
func (stubDB) HasVoted(context.Context, int64, int, int64) (bool, error) { return false, nil }
func (stubDB) IncrementVote(context.Context, int64, int, bool) error     { return nil }
func (stubDB) TakeVoting(context.Context, int64, int) (*db.VotingRecord, error) {
	return nil, db.ErrNotFound
}
func (stubDB) GroupExists(context.Context, int64) (bool, error) { return false, nil }
func (stubDB) AddGroup(context.Context, *db.Group) error        { return nil }
func (stubDB) DeleteGroup(context.Context, int64) error         { return nil }
func (stubDB) UserExists(context.Context, int64) (bool, error)  { return false, nil }
func (stubDB) AddUser(context.Context, *db.User) error          { return nil }

type stubService struct {
	b *api.BotAPI
}

func (s *stubService) GetBot() *api.BotAPI { return s.b }
func (s *stubService) GetDB() db.Client    { return stubDB{} }
func (s *stubService) GetGroupConfig(context.Context, int64) (*db.GroupConfig, error) {
	return nil, db.ErrNotFound
}
func (s *stubService) SetGroupConfig(context.Context, *db.GroupConfig) error { return nil }
func (s *stubService) IsGroupAdmin(context.Context, int64, int64) (bool, error) {
	return false, nil
}
func (s *stubService) GetLanguage(*api.Chat, *api.User) string { return "en" }

func newStubService(t *testing.T) (*stubService, *recordingAPIClient) {
	t.Helper()
	client := &recordingAPIClient{}
	b, err := api.NewBotAPIWithClient("test-token", api.APIEndpoint, client)
	if err != nil {
		t.Fatalf("cant build stub bot: %v", err)
	}
	return &stubService{b: b}, client
}

func newTestSentinel(t *testing.T) (*Sentinel, *recordingAPIClient) {
	t.Helper()
	svc, client := newStubService(t)
	s := sched.NewScheduler()
	t.Cleanup(s.Stop)
	return NewSentinel(svc, nil, nil, antiflood.NewTracker(), s, config.ScamControl{}), client
}

func TestStaleCallbackIsAcknowledgedAndDropped(t *testing.T) {
	t.Parallel()

	sn, client := newTestSentinel(t)
	u := &api.Update{CallbackQuery: &api.CallbackQuery{ID: "1", Data: "button_from_older_build"}}

	proceed, err := sn.Handle(context.Background(), u, &api.Chat{ID: 10}, &api.User{ID: 20})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if proceed {
		t.Fatal("unrecognized callback must end the chain")
	}
	if !client.called("answerCallbackQuery") {
		t.Fatal("callback query was never answered")
	}
}

type fixedClassifier struct {
	verdict spam.Verdict
}

func (c fixedClassifier) Classify(context.Context, string) (spam.Verdict, error) {
	return c.verdict, nil
}

func TestCheckScamBelowThresholdOpensNoVote(t *testing.T) {
	t.Parallel()

	sn, client := newTestSentinel(t)
	sn.classifier = fixedClassifier{verdict: spam.Verdict{Label: spam.LabelSpam, Probability: 0.2}}
	sn.scamControl.AlertThreshold = 0.6

	m := &api.Message{MessageID: 7, From: &api.User{ID: 20}}
	if sn.checkScam(context.Background(), &api.Chat{ID: 10}, m, "buy now") {
		t.Fatal("sub-threshold verdict must not open a vote")
	}
	if client.called("sendMessage") {
		t.Fatal("no alert message expected")
	}
}

func TestKnownCallbacksPassThroughSentinelUntouched(t *testing.T) {
	t.Parallel()

	sn, client := newTestSentinel(t)
	u := &api.Update{CallbackQuery: &api.CallbackQuery{ID: "2", Data: bot.WizardStartCallbackData()}}

	proceed, err := sn.Handle(context.Background(), u, &api.Chat{ID: 10}, &api.User{ID: 20})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !proceed {
		t.Fatal("wizard callbacks belong to another handler and must proceed")
	}
	if client.called("answerCallbackQuery") {
		t.Fatal("foreign callback must not be answered here")
	}
}
