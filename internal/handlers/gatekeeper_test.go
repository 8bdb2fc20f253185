package handlers

import (
	"strconv"
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/axioma-ai-labs/guardy/internal/bot"
	"github.com/axioma-ai-labs/guardy/internal/captcha"
	"github.com/axioma-ai-labs/guardy/internal/sched"
)

func newTestGatekeeper(t *testing.T) *Gatekeeper {
	t.Helper()
	s := sched.NewScheduler()
	t.Cleanup(s.Stop)
	return NewGatekeeper(nil, captcha.NewGenerator(7, captcha.NewBitmapRenderer(7)), s)
}

func TestChallengeKeyboardMarksCorrectAnswerOnce(t *testing.T) {
	t.Parallel()

	g := newTestGatekeeper(t)

	const answer = 42
	markup := g.challengeKeyboard("en", answer, true)

	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("expected answers row plus regenerate row, got %d rows", len(markup.InlineKeyboard))
	}
	options := markup.InlineKeyboard[0]
	if len(options) != captcha.OptionCount {
		t.Fatalf("expected %d answer buttons, got %d", captcha.OptionCount, len(options))
	}

	correct := 0
	for _, button := range options {
		cb, ok := bot.DecodeCallback(*button.CallbackData).(bot.VerificationCallback)
		if !ok {
			t.Fatalf("answer button carries non-verification payload %q", *button.CallbackData)
		}
		switch cb.Result {
		case bot.VerificationCorrect:
			if button.Text != strconv.Itoa(answer) {
				t.Fatalf("correct button labeled %q, want %d", button.Text, answer)
			}
			correct++
		case bot.VerificationWrong:
		default:
			t.Fatalf("unexpected answer payload %v", cb.Result)
		}
	}
	if correct != 1 {
		t.Fatalf("correct answer marked %d times", correct)
	}

	regen := markup.InlineKeyboard[1]
	if len(regen) != 1 {
		t.Fatalf("expected a single regenerate button")
	}
	if cb := bot.DecodeCallback(*regen[0].CallbackData); cb != (bot.VerificationCallback{Result: bot.VerificationRegenerate}) {
		t.Fatalf("unexpected regenerate payload %#v", cb)
	}
}

func TestChallengeKeyboardWithdrawsRegenerateAffordance(t *testing.T) {
	t.Parallel()

	g := newTestGatekeeper(t)

	markup := g.challengeKeyboard("en", 17, false)
	if len(markup.InlineKeyboard) != 1 {
		t.Fatalf("exhausted challenge must not offer regeneration, got %d rows", len(markup.InlineKeyboard))
	}
}

func TestRegenerateSwapsChallengeMedia(t *testing.T) {
	t.Parallel()

	svc, client := newStubService(t)
	s := sched.NewScheduler()
	t.Cleanup(s.Stop)
	g := NewGatekeeper(svc, captcha.NewGenerator(7, captcha.NewBitmapRenderer(7)), s)

	user := &api.User{ID: 20}
	state := &challengeState{groupID: -100, answer: 3, promptMessageID: 55}
	g.mu.Lock()
	g.challenges[user.ID] = state
	g.mu.Unlock()

	cq := &api.CallbackQuery{
		ID:      "1",
		From:    user,
		Message: &api.Message{MessageID: 55, Chat: api.Chat{ID: 20}},
	}
	if err := g.regenerateChallenge(cq, user, state, "en"); err != nil {
		t.Fatalf("regenerateChallenge returned error: %v", err)
	}
	if !client.called("editMessageMedia") {
		t.Fatal("prompt media was never swapped")
	}
	if state.regenerations != 1 {
		t.Fatalf("regenerations = %d, want 1", state.regenerations)
	}
}

func TestRegenerateRefusesAfterCap(t *testing.T) {
	t.Parallel()

	svc, client := newStubService(t)
	s := sched.NewScheduler()
	t.Cleanup(s.Stop)
	g := NewGatekeeper(svc, captcha.NewGenerator(7, captcha.NewBitmapRenderer(7)), s)

	user := &api.User{ID: 21}
	state := &challengeState{groupID: -100, answer: 3, promptMessageID: 56, regenerations: captcha.MaxRegenerations}

	cq := &api.CallbackQuery{
		ID:      "2",
		From:    user,
		Message: &api.Message{MessageID: 56, Chat: api.Chat{ID: 21}},
	}
	if err := g.regenerateChallenge(cq, user, state, "en"); err != nil {
		t.Fatalf("regenerateChallenge returned error: %v", err)
	}
	if client.called("editMessageMedia") {
		t.Fatal("exhausted challenge must keep its media")
	}
	if state.regenerations != captcha.MaxRegenerations {
		t.Fatalf("regenerations moved to %d", state.regenerations)
	}
}
