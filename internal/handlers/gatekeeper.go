package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/axioma-ai-labs/guardy/internal/bot"
	"github.com/axioma-ai-labs/guardy/internal/captcha"
	"github.com/axioma-ai-labs/guardy/internal/config"
	"github.com/axioma-ai-labs/guardy/internal/db"
	"github.com/axioma-ai-labs/guardy/internal/i18n"
	"github.com/axioma-ai-labs/guardy/internal/observability"
	"github.com/axioma-ai-labs/guardy/internal/sched"
)

const (
	verifyPayloadPrefix = "verify_"

	confirmationTTL = 60 * time.Second
	noticeTTL       = 30 * time.Second

	// Telegram treats restrictions longer than a year as permanent, which
	// is what an unverified member gets until they solve the challenge.
	restrictForever = 400 * 24 * time.Hour
)

// challengeState is the in-flight challenge of one member, scoped to a
// single verification attempt and destroyed on any outcome.
type challengeState struct {
	groupID         int64
	answer          int
	promptMessageID int
	regenerations   int
}

// Gatekeeper runs human verification for joining members and kicks bots
// added by non-administrators.
type Gatekeeper struct {
	s   bot.Service
	gen *captcha.Generator
	sch *sched.Scheduler

	mu         sync.Mutex
	challenges map[int64]*challengeState
}

func NewGatekeeper(s bot.Service, gen *captcha.Generator, sch *sched.Scheduler) *Gatekeeper {
	return &Gatekeeper{
		s:          s,
		gen:        gen,
		sch:        sch,
		challenges: map[int64]*challengeState{},
	}
}

func (g *Gatekeeper) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if chat == nil || user == nil {
		return true, nil
	}

	switch {
	case u.CallbackQuery != nil:
		if _, ok := bot.DecodeCallback(u.CallbackQuery.Data).(bot.VerificationCallback); !ok {
			return true, nil
		}
		return false, g.handleChallengeAnswer(ctx, u.CallbackQuery, user)

	case u.Message != nil && u.Message.NewChatMembers != nil:
		return true, g.handleJoin(ctx, u.Message, chat)

	case u.Message != nil && u.Message.WebAppData != nil && chat.IsPrivate():
		if cb, ok := bot.DecodeCallback(u.Message.WebAppData.Data).(bot.VerificationCallback); ok {
			return false, g.handleWebAnswer(ctx, cb, chat, user)
		}
		g.getLogEntry().WithField("payload", u.Message.WebAppData.Data).Warn("unknown web app payload")
		return false, nil

	case u.Message != nil && chat.IsPrivate() && u.Message.IsCommand() && u.Message.Command() == "start" &&
		strings.HasPrefix(u.Message.CommandArguments(), verifyPayloadPrefix):
		return false, g.handleVerifyStart(ctx, u.Message, chat, user)
	}

	return true, nil
}

// handleJoin restricts joining humans pending verification and removes
// bots added by regular members.
func (g *Gatekeeper) handleJoin(ctx context.Context, m *api.Message, chat *api.Chat) error {
	entry := g.getLogEntry().WithField("method", "handleJoin").WithField("chat", chat.Title)
	b := g.s.GetBot()

	cfg, err := g.s.GetGroupConfig(ctx, chat.ID)
	if err != nil {
		return err
	}
	if !cfg.Enabled() {
		return nil
	}

	for i := range m.NewChatMembers {
		joined := &m.NewChatMembers[i]
		if joined.ID == b.Self.ID {
			continue
		}

		if joined.IsBot {
			if cfg.BotRemoval != db.ChoiceYes {
				continue
			}
			adderIsAdmin, err := g.s.IsGroupAdmin(ctx, chat.ID, m.From.ID)
			if err != nil {
				entry.WithError(err).Error("cant check adder admin status")
				continue
			}
			if adderIsAdmin {
				continue
			}
			entry.WithField("bot", bot.GetUN(joined)).Info("removing bot added by non-admin")
			// A short-lived ban, so an admin can still add the same bot on purpose.
			if err := bot.KickUserFromChat(ctx, b, joined.ID, chat.ID); err != nil {
				entry.WithError(err).Error("cant remove bot")
				continue
			}
			observability.RecordModerationAction("bot_removal")
			g.sendTransientNotice(chat.ID,
				i18n.Get("Adding external bots is not allowed in this group.", g.s.GetLanguage(chat, m.From)))
			continue
		}

		if cfg.HumanVerification == db.VerificationNone {
			lang := g.s.GetLanguage(chat, joined)
			g.sendTransientNotice(chat.ID, fmt.Sprintf(i18n.Get("Welcome, %s!", lang), bot.GetFullName(joined)))
			continue
		}

		entry.WithField("user", bot.GetUN(joined)).Info("restricting joined member pending verification")
		if err := bot.RestrictChatting(ctx, b, joined.ID, chat.ID, time.Now().Add(restrictForever)); err != nil {
			entry.WithError(err).Error("cant restrict joined member")
		}

		lang := g.s.GetLanguage(chat, joined)
		welcome := api.NewMessage(chat.ID, fmt.Sprintf(
			i18n.Get("Welcome, %s! To start chatting, please prove you're human.", lang),
			bot.GetFullName(joined),
		))
		welcome.DisableNotification = true
		welcome.ReplyMarkup = api.NewInlineKeyboardMarkup(
			api.NewInlineKeyboardRow(
				api.NewInlineKeyboardButtonURL(
					i18n.Get("Verify yourself", lang),
					fmt.Sprintf("https://t.me/%s?start=%s%d", b.Self.UserName, verifyPayloadPrefix, chat.ID),
				),
			),
		)
		sent, err := b.Send(welcome)
		if err != nil {
			entry.WithError(err).Error("cant send welcome")
		}

		// A re-join supersedes any earlier pending record.
		if err := g.s.GetDB().PutVerification(ctx, &db.VerificationRecord{
			GroupID:          chat.ID,
			UserID:           joined.ID,
			GroupTitle:       chat.Title,
			GroupUsername:    chat.UserName,
			WelcomeMessageID: sent.MessageID,
			Kind:             cfg.HumanVerification,
		}); err != nil {
			entry.WithError(err).Error("cant store verification record")
		}
	}

	// The "X joined the group" service message is noise once the welcome is
	// out.
	if err := bot.DeleteChatMessage(ctx, b, chat.ID, m.MessageID); err != nil {
		entry.WithError(err).Debug("cant delete join service message")
	}
	return nil
}

// sendTransientNotice posts a group notice that removes itself shortly
// after.
func (g *Gatekeeper) sendTransientNotice(chatID int64, text string) {
	b := g.s.GetBot()
	msg := api.NewMessage(chatID, text)
	msg.DisableNotification = true
	sent, err := b.Send(msg)
	if err != nil {
		g.getLogEntry().WithError(err).Error("cant send notice")
		return
	}
	g.sch.After(noticeTTL, func() {
		if err := bot.DeleteChatMessage(context.Background(), b, chatID, sent.MessageID); err != nil {
			g.getLogEntry().WithError(err).Debug("cant delete notice")
		}
	})
}

// handleVerifyStart issues the challenge in the private chat after the
// member follows the deep link from the group welcome.
func (g *Gatekeeper) handleVerifyStart(ctx context.Context, m *api.Message, chat *api.Chat, user *api.User) error {
	entry := g.getLogEntry().WithField("method", "handleVerifyStart").WithField("user", bot.GetUN(user))
	b := g.s.GetBot()
	lang := g.s.GetLanguage(chat, user)

	groupID, err := strconv.ParseInt(strings.TrimPrefix(m.CommandArguments(), verifyPayloadPrefix), 10, 64)
	if err != nil {
		entry.WithError(err).Warn("malformed verify payload")
		return nil
	}

	rec, err := g.s.GetDB().GetVerification(ctx, groupID, user.ID)
	if err != nil {
		return errors.WithMessage(err, "cant get verification record")
	}
	if rec == nil {
		_, _ = b.Send(api.NewMessage(chat.ID, i18n.Get("There is nothing to verify right now.", lang)))
		return nil
	}

	switch rec.Kind {
	case db.VerificationWeb:
		msg := api.NewMessage(chat.ID, fmt.Sprintf(
			i18n.Get("One more step to join \"%s\": open the captcha and solve it.", lang), rec.GroupTitle))
		msg.ReplyMarkup = api.NewInlineKeyboardMarkup(
			api.NewInlineKeyboardRow(
				api.InlineKeyboardButton{
					Text:   i18n.Get("Open captcha", lang),
					WebApp: &api.WebAppInfo{URL: config.Get().BotURL + "/captcha?session=" + uuid.New()},
				},
			),
		)
		_, err := b.Send(msg)
		return err

	default:
		return g.issueImageChallenge(chat, user, rec, lang)
	}
}

func (g *Gatekeeper) issueImageChallenge(chat *api.Chat, user *api.User, rec *db.VerificationRecord, lang string) error {
	entry := g.getLogEntry().WithField("method", "issueImageChallenge").WithField("user", bot.GetUN(user))
	b := g.s.GetBot()

	puzzle, err := g.gen.NewPuzzle()
	if err != nil {
		entry.WithError(err).Error("cant generate puzzle")
		_, _ = b.Send(api.NewMessage(chat.ID, i18n.Get("Something went wrong, please try again.", lang)))
		return nil
	}

	photo := api.NewPhoto(chat.ID, api.FileBytes{Name: "captcha.png", Bytes: puzzle.Image})
	photo.Caption = fmt.Sprintf(i18n.Get("Solve the puzzle to join \"%s\".", lang), rec.GroupTitle)
	photo.ReplyMarkup = g.challengeKeyboard(lang, puzzle.Answer, true)
	sent, err := b.Send(photo)
	if err != nil {
		return errors.WithMessage(err, "cant send challenge")
	}

	g.mu.Lock()
	g.challenges[user.ID] = &challengeState{
		groupID:         rec.GroupID,
		answer:          puzzle.Answer,
		promptMessageID: sent.MessageID,
	}
	g.mu.Unlock()
	return nil
}

func (g *Gatekeeper) challengeKeyboard(lang string, answer int, withRegenerate bool) api.InlineKeyboardMarkup {
	options := g.gen.Options(answer)
	row := make([]api.InlineKeyboardButton, 0, len(options))
	for _, option := range options {
		data := bot.VerificationCallbackData(bot.VerificationWrong)
		if option == answer {
			data = bot.VerificationCallbackData(bot.VerificationCorrect)
		}
		row = append(row, api.NewInlineKeyboardButtonData(strconv.Itoa(option), data))
	}
	rows := [][]api.InlineKeyboardButton{row}
	if withRegenerate {
		rows = append(rows, api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData(
				"\U0001f504 "+i18n.Get("Another puzzle", lang),
				bot.VerificationCallbackData(bot.VerificationRegenerate),
			),
		))
	}
	return api.NewInlineKeyboardMarkup(rows...)
}

func (g *Gatekeeper) handleChallengeAnswer(ctx context.Context, cq *api.CallbackQuery, user *api.User) error {
	entry := g.getLogEntry().WithField("method", "handleChallengeAnswer").WithField("user", bot.GetUN(user))
	lang := g.s.GetLanguage(nil, user)

	g.mu.Lock()
	state := g.challenges[user.ID]
	g.mu.Unlock()
	if state == nil {
		entry.Debug("no challenge in flight")
		g.answer(cq, i18n.Get("This challenge isn't your concern", lang))
		return nil
	}

	cb := bot.DecodeCallback(cq.Data).(bot.VerificationCallback)
	switch cb.Result {
	case bot.VerificationRegenerate:
		return g.regenerateChallenge(cq, user, state, lang)

	case bot.VerificationCorrect, bot.VerificationCorrectWeb:
		g.answer(cq, i18n.Get("Welcome, friend!", lang))
		return g.concludeVerification(ctx, user, state.groupID, state.promptMessageID, true)

	case bot.VerificationWrong, bot.VerificationWrongWeb:
		g.answer(cq, i18n.Get("That's not the right answer.", lang))
		return g.concludeVerification(ctx, user, state.groupID, state.promptMessageID, false)
	}
	return nil
}

// handleWebAnswer funnels the web captcha's structured payload into the
// same outcome transitions as the button-based challenge.
func (g *Gatekeeper) handleWebAnswer(ctx context.Context, cb bot.VerificationCallback, chat *api.Chat, user *api.User) error {
	g.mu.Lock()
	state := g.challenges[user.ID]
	g.mu.Unlock()

	var groupID int64
	promptMessageID := 0
	if state != nil {
		groupID = state.groupID
		promptMessageID = state.promptMessageID
	} else {
		// The web flavor keeps no local challenge state; find the pending
		// record through the freshest verification for this user.
		rec := g.findPendingByUser(ctx, user.ID)
		if rec == nil {
			g.getLogEntry().WithField("user", bot.GetUN(user)).Debug("web answer without pending verification")
			return nil
		}
		groupID = rec.GroupID
	}

	return g.concludeVerification(ctx, user, groupID, promptMessageID, cb.Result == bot.VerificationCorrectWeb || cb.Result == bot.VerificationCorrect)
}

func (g *Gatekeeper) regenerateChallenge(cq *api.CallbackQuery, user *api.User, state *challengeState, lang string) error {
	entry := g.getLogEntry().WithField("method", "regenerateChallenge").WithField("user", bot.GetUN(user))

	if state.regenerations >= captcha.MaxRegenerations {
		g.answer(cq, i18n.Get("No more fresh puzzles, solve this one.", lang))
		return nil
	}

	puzzle, err := g.gen.NewPuzzle()
	if err != nil {
		entry.WithError(err).Error("cant regenerate puzzle")
		g.answer(cq, i18n.Get("Something went wrong, please try again.", lang))
		return nil
	}

	g.mu.Lock()
	state.regenerations++
	state.answer = puzzle.Answer
	withRegenerate := state.regenerations < captcha.MaxRegenerations
	g.mu.Unlock()

	markup := g.challengeKeyboard(lang, puzzle.Answer, withRegenerate)
	edit := api.EditMessageMediaConfig{
		BaseEdit: api.BaseEdit{
			BaseChatMessage: api.BaseChatMessage{
				ChatConfig: api.ChatConfig{ChatID: cq.Message.Chat.ID},
				MessageID:  state.promptMessageID,
			},
		},
		Media: api.NewInputMediaPhoto(api.FileBytes{Name: "captcha.png", Bytes: puzzle.Image}),
	}
	edit.ReplyMarkup = &markup
	if _, err := g.s.GetBot().Request(edit); err != nil {
		entry.WithError(err).Error("cant swap challenge media")
	}
	g.answer(cq, "")
	return nil
}

// concludeVerification applies a terminal outcome: the pending record is
// removed either way, the restriction is lifted only on success.
func (g *Gatekeeper) concludeVerification(ctx context.Context, user *api.User, groupID int64, promptMessageID int, success bool) error {
	entry := g.getLogEntry().WithFields(log.Fields{
		"method":  "concludeVerification",
		"user":    bot.GetUN(user),
		"success": success,
	})
	b := g.s.GetBot()
	lang := g.s.GetLanguage(nil, user)

	rec, err := g.s.GetDB().GetVerification(ctx, groupID, user.ID)
	if err != nil {
		return errors.WithMessage(err, "cant get verification record")
	}

	g.mu.Lock()
	delete(g.challenges, user.ID)
	g.mu.Unlock()

	if rec == nil {
		entry.Debug("verification already concluded")
		return nil
	}

	if err := g.s.GetDB().DeleteVerification(ctx, groupID, user.ID); err != nil {
		entry.WithError(err).Error("cant delete verification record")
	}

	var confirmation api.MessageConfig
	if success {
		if err := bot.UnrestrictChatting(ctx, b, user.ID, groupID); err != nil {
			entry.WithError(err).Error("cant lift restriction")
		}
		observability.RecordModerationAction("verification_passed")

		text := fmt.Sprintf(i18n.Get("You're verified! Welcome to \"%s\".", lang), rec.GroupTitle)
		confirmation = api.NewMessage(user.ID, text)
		if rec.GroupUsername != "" {
			confirmation.ReplyMarkup = api.NewInlineKeyboardMarkup(
				api.NewInlineKeyboardRow(
					api.NewInlineKeyboardButtonURL(
						i18n.Get("Back to the group", lang),
						"https://t.me/"+rec.GroupUsername,
					),
				),
			)
		}
	} else {
		observability.RecordModerationAction("verification_failed")
		confirmation = api.NewMessage(user.ID, fmt.Sprintf(
			i18n.Get("Wrong answer, you stay muted in \"%s\". Ask an administrator to let you retry.", lang), rec.GroupTitle))
	}

	if rec.WelcomeMessageID != 0 {
		if err := bot.DeleteChatMessage(ctx, b, groupID, rec.WelcomeMessageID); err != nil {
			entry.WithError(err).Debug("cant delete welcome message")
		}
	}
	if promptMessageID != 0 {
		if err := bot.DeleteChatMessage(ctx, b, user.ID, promptMessageID); err != nil {
			entry.WithError(err).Debug("cant delete challenge prompt")
		}
	}

	sent, err := b.Send(confirmation)
	if err != nil {
		entry.WithError(err).Error("cant send confirmation")
		return nil
	}
	g.sch.After(confirmationTTL, func() {
		if err := bot.DeleteChatMessage(context.Background(), b, user.ID, sent.MessageID); err != nil {
			entry.WithError(err).Debug("cant delete confirmation")
		}
	})
	return nil
}

// findPendingByUser is a best-effort lookup when an answer arrives without
// local state, e.g. after a restart.
func (g *Gatekeeper) findPendingByUser(ctx context.Context, userID int64) *db.VerificationRecord {
	rec, err := g.s.GetDB().GetLatestVerification(ctx, userID)
	if err != nil {
		g.getLogEntry().WithError(err).Error("cant look up pending verification")
		return nil
	}
	return rec
}

func (g *Gatekeeper) answer(cq *api.CallbackQuery, text string) {
	if _, err := g.s.GetBot().Request(api.NewCallback(cq.ID, text)); err != nil {
		g.getLogEntry().WithError(err).Error("cant answer callback query")
	}
}

func (g *Gatekeeper) getLogEntry() *log.Entry {
	return log.WithField("object", "Gatekeeper")
}
