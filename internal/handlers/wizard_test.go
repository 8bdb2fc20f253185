package handlers

import (
	"testing"

	"github.com/axioma-ai-labs/guardy/internal/bot"
	"github.com/axioma-ai-labs/guardy/internal/db"
)

func TestWizardWalksStepsInOrder(t *testing.T) {
	t.Parallel()

	store := newWizardStore()
	session := store.start(-100, 1)

	// Answering a later step out of order is rejected.
	if session.apply(bot.StepAntiflood, "10") {
		t.Fatalf("out-of-order step must be rejected")
	}
	if !session.apply(bot.StepLinkRemoval, db.ChoiceYes) {
		t.Fatalf("first step rejected")
	}
	// A repeated tap on an already answered step is rejected.
	if session.apply(bot.StepLinkRemoval, db.ChoiceNo) {
		t.Fatalf("answered step must not accept another choice")
	}
	if !session.apply(bot.StepForwardedRemoval, db.ChoiceNo) {
		t.Fatalf("second step rejected")
	}
	if !session.apply(bot.StepHumanVerification, db.VerificationImage) {
		t.Fatalf("third step rejected")
	}
	if !session.apply(bot.StepBotRemoval, db.ChoiceYes) {
		t.Fatalf("fourth step rejected")
	}
	if session.complete() {
		t.Fatalf("session complete before last step")
	}
	if !session.apply(bot.StepAntiflood, "5") {
		t.Fatalf("last step rejected")
	}
	if !session.complete() {
		t.Fatalf("session not complete after all steps")
	}
}

func TestWizardRejectsInvalidChoice(t *testing.T) {
	t.Parallel()

	store := newWizardStore()
	session := store.start(-100, 1)

	if session.apply(bot.StepLinkRemoval, "maybe") {
		t.Fatalf("choice outside the allowed set must be rejected")
	}
	if session.apply(bot.StepLinkRemoval, db.VerificationImage) {
		t.Fatalf("choice from another step's vocabulary must be rejected")
	}
	if !session.apply(bot.StepLinkRemoval, db.ChoiceNo) {
		t.Fatalf("valid choice rejected after invalid attempts")
	}
}

func TestWizardCommitEnablesAllFields(t *testing.T) {
	t.Parallel()

	store := newWizardStore()
	session := store.start(-100, 1)
	session.apply(bot.StepLinkRemoval, db.ChoiceYes)
	session.apply(bot.StepForwardedRemoval, db.ChoiceYes)
	session.apply(bot.StepHumanVerification, db.VerificationWeb)
	session.apply(bot.StepBotRemoval, db.ChoiceNo)
	session.apply(bot.StepAntiflood, db.AntifloodOff)

	cfg := session.config()
	if cfg.GuardyStatus != db.StatusEnabled {
		t.Fatalf("commit must enable the moderator")
	}
	if cfg.LinkRemoval == "" || cfg.ForwardedRemoval == "" || cfg.HumanVerification == "" ||
		cfg.BotRemoval == "" || cfg.Antiflood == "" {
		t.Fatalf("partial commit observed: %+v", cfg)
	}
	if cfg.HumanVerification != db.VerificationWeb || cfg.Antiflood != db.AntifloodOff {
		t.Fatalf("choices lost on commit: %+v", cfg)
	}
}

func TestWizardRestartDiscardsProgress(t *testing.T) {
	t.Parallel()

	store := newWizardStore()
	first := store.start(-100, 1)
	first.apply(bot.StepLinkRemoval, db.ChoiceYes)

	second := store.start(-100, 2)
	if second.currentStep() != bot.StepLinkRemoval {
		t.Fatalf("restarted wizard must begin at the first step")
	}
	if store.get(-100) != second {
		t.Fatalf("store should hold the newest session")
	}

	store.drop(-100)
	if store.get(-100) != nil {
		t.Fatalf("dropped session still present")
	}
}
