package handlers

import (
	"sync"

	"github.com/iamwavecut/tool"

	"github.com/axioma-ai-labs/guardy/internal/bot"
	"github.com/axioma-ai-labs/guardy/internal/db"
)

// stepChoices enumerates the valid answers per wizard step.
var stepChoices = map[string][]string{
	bot.StepLinkRemoval:       {db.ChoiceYes, db.ChoiceNo},
	bot.StepForwardedRemoval:  {db.ChoiceYes, db.ChoiceNo},
	bot.StepHumanVerification: {db.VerificationImage, db.VerificationWeb, db.VerificationNone},
	bot.StepBotRemoval:        {db.ChoiceYes, db.ChoiceNo},
	bot.StepAntiflood:         db.AntifloodChoices,
}

// wizardSession accumulates one admin's pass through the configuration
// steps. Choices are merged into the group config only on commit, as one
// unit; an abandoned session leaves the stored config untouched.
type wizardSession struct {
	groupID   int64
	messageID int
	stepIndex int
	choices   map[string]string
}

// currentStep returns the step the session is waiting on, or "" when all
// steps are answered.
func (w *wizardSession) currentStep() string {
	if w.stepIndex >= len(bot.WizardSteps) {
		return ""
	}
	return bot.WizardSteps[w.stepIndex]
}

// apply records a choice for the current step and advances. Answers for the
// wrong step or outside the allowed set are rejected, which also covers
// stale taps on an outdated keyboard.
func (w *wizardSession) apply(step, choice string) bool {
	if step != w.currentStep() {
		return false
	}
	if !tool.In(choice, stepChoices[step]...) {
		return false
	}
	w.choices[step] = choice
	w.stepIndex++
	return true
}

func (w *wizardSession) complete() bool {
	return w.stepIndex >= len(bot.WizardSteps)
}

// config materializes the accumulated choices. Only valid on a complete
// session; committing always enables the moderator.
func (w *wizardSession) config() *db.GroupConfig {
	return &db.GroupConfig{
		GroupID:           w.groupID,
		GuardyStatus:      db.StatusEnabled,
		LinkRemoval:       w.choices[bot.StepLinkRemoval],
		ForwardedRemoval:  w.choices[bot.StepForwardedRemoval],
		HumanVerification: w.choices[bot.StepHumanVerification],
		BotRemoval:        w.choices[bot.StepBotRemoval],
		Antiflood:         w.choices[bot.StepAntiflood],
	}
}

// wizardStore holds at most one active wizard per group.
type wizardStore struct {
	mu       sync.Mutex
	sessions map[int64]*wizardSession
}

func newWizardStore() *wizardStore {
	return &wizardStore{sessions: map[int64]*wizardSession{}}
}

// start opens a fresh session, discarding any unfinished one for the group.
func (s *wizardStore) start(groupID int64, messageID int) *wizardSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := &wizardSession{
		groupID:   groupID,
		messageID: messageID,
		choices:   map[string]string{},
	}
	s.sessions[groupID] = session
	return session
}

func (s *wizardStore) get(groupID int64) *wizardSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[groupID]
}

func (s *wizardStore) drop(groupID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, groupID)
}
