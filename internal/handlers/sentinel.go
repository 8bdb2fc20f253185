package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/axioma-ai-labs/guardy/internal/antiflood"
	"github.com/axioma-ai-labs/guardy/internal/bot"
	"github.com/axioma-ai-labs/guardy/internal/config"
	"github.com/axioma-ai-labs/guardy/internal/db"
	"github.com/axioma-ai-labs/guardy/internal/i18n"
	"github.com/axioma-ai-labs/guardy/internal/observability"
	"github.com/axioma-ai-labs/guardy/internal/sched"
	"github.com/axioma-ai-labs/guardy/internal/spam"
)

const (
	floodMuteDuration = 5 * time.Minute
	floodWarningTTL   = 30 * time.Second
)

// Sentinel watches group messages: it removes links and forwards, mutes
// flooders, opens community votes on suspected scams and answers mentions
// in the designated assistant groups.
type Sentinel struct {
	s           bot.Service
	classifier  spam.Classifier
	assistant   Assistant
	flood       *antiflood.Tracker
	sch         *sched.Scheduler
	scamControl config.ScamControl
}

// NewSentinel builds the handler. classifier and assistant may be nil;
// the matching feature degrades to a no-op. The flood tracker is shared
// with the admin handler, which clears it when the bot leaves a group.
func NewSentinel(s bot.Service, classifier spam.Classifier, assistant Assistant, flood *antiflood.Tracker, sch *sched.Scheduler, scamControl config.ScamControl) *Sentinel {
	return &Sentinel{
		s:           s,
		classifier:  classifier,
		assistant:   assistant,
		flood:       flood,
		sch:         sch,
		scamControl: scamControl,
	}
}

func (sn *Sentinel) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u.CallbackQuery != nil {
		switch cb := bot.DecodeCallback(u.CallbackQuery.Data).(type) {
		case bot.VoteCallback:
			return false, sn.castVote(ctx, u.CallbackQuery, cb, chat, user)
		case bot.UnknownCallback:
			// Last handler in the chain: acknowledge so the button stops
			// spinning, then drop the payload.
			sn.getLogEntry().WithField("data", cb.Data).Warn("unknown callback payload")
			sn.answer(u.CallbackQuery, "")
			return false, nil
		}
		return true, nil
	}

	if u.Message == nil || chat == nil || user == nil {
		return true, nil
	}
	if chat.IsPrivate() || chat.IsChannel() {
		return true, nil
	}
	m := u.Message

	// Join events belong to the verification flow.
	if m.NewChatMembers != nil {
		return true, nil
	}

	cfg, err := sn.s.GetGroupConfig(ctx, chat.ID)
	if err != nil {
		return true, err
	}
	if !cfg.Enabled() {
		return true, nil
	}

	done := observability.StartMessageProcessing()

	if m.LeftChatMember != nil {
		// Leave notices are noise, drop them.
		sn.deleteMessage(ctx, chat.ID, m.MessageID)
		done("service_cleanup")
		return false, nil
	}

	isAdmin, err := sn.s.IsGroupAdmin(ctx, chat.ID, user.ID)
	if err != nil {
		sn.getLogEntry().WithError(err).Error("cant check admin status")
	}

	if !isAdmin {
		if cfg.LinkRemoval == db.ChoiceYes && messageHasLink(m) {
			sn.deleteMessage(ctx, chat.ID, m.MessageID)
			observability.RecordModerationAction("link_removal")
			done("link_removed")
			return false, nil
		}
		if cfg.ForwardedRemoval == db.ChoiceYes && m.ForwardOrigin != nil {
			sn.deleteMessage(ctx, chat.ID, m.MessageID)
			observability.RecordModerationAction("forward_removal")
			done("forward_removed")
			return false, nil
		}
	}

	if limit, enabled := cfg.AntifloodLimit(); enabled {
		if action, ids := sn.flood.Observe(chat.ID, user.ID, m.MessageID, time.Now(), limit); action == antiflood.Mute {
			sn.muteFlooder(ctx, chat, user, ids)
			done("flood_muted")
			return false, nil
		}
	}

	text := bot.ExtractContentFromMessage(m)

	if sn.assistant != nil && sn.scamControl.IsAssistantGroup(chat.ID) && sn.isMentioned(text) {
		sn.answerMention(ctx, chat, m, text)
		done("assistant")
		return false, nil
	}

	if sn.classifier != nil && text != "" {
		if opened := sn.checkScam(ctx, chat, m, text); opened {
			done("vote_opened")
			return false, nil
		}
	}

	done("ok")
	return true, nil
}

func messageHasLink(m *api.Message) bool {
	for _, entities := range [][]api.MessageEntity{m.Entities, m.CaptionEntities} {
		for _, e := range entities {
			if e.IsURL() || e.IsTextLink() {
				return true
			}
		}
	}
	text := m.Text + " " + m.Caption
	for _, marker := range []string{"http://", "https://", "t.me/"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func (sn *Sentinel) muteFlooder(ctx context.Context, chat *api.Chat, user *api.User, messageIDs []int) {
	entry := sn.getLogEntry().WithField("method", "muteFlooder").WithField("user", bot.GetUN(user))
	b := sn.s.GetBot()
	lang := sn.s.GetLanguage(chat, user)

	entry.Info("muting flooder")
	if err := bot.RestrictChatting(ctx, b, user.ID, chat.ID, time.Now().Add(floodMuteDuration)); err != nil {
		entry.WithError(err).Error("cant restrict flooder")
	}
	for _, id := range messageIDs {
		sn.deleteMessage(ctx, chat.ID, id)
	}
	observability.RecordModerationAction("antiflood")

	warning := api.NewMessage(chat.ID, fmt.Sprintf(
		i18n.Get("%s is sending messages too fast and is muted for 5 minutes.", lang), bot.GetFullName(user)))
	warning.DisableNotification = true
	sent, err := b.Send(warning)
	if err != nil {
		entry.WithError(err).Error("cant send flood warning")
		return
	}
	sn.sch.After(floodWarningTTL, func() {
		sn.deleteMessage(context.Background(), chat.ID, sent.MessageID)
	})
}

// checkScam scores the message and opens a community vote when it crosses
// the alert threshold. Returns whether a vote was opened.
func (sn *Sentinel) checkScam(ctx context.Context, chat *api.Chat, m *api.Message, text string) bool {
	ctx, span := otel.Tracer("scam-detector").Start(ctx, "score-message")
	defer span.End()

	entry := sn.getLogEntry().WithField("method", "checkScam")
	b := sn.s.GetBot()
	lang := sn.s.GetLanguage(chat, m.From)

	observability.Logger.Info("scoring message",
		zap.Int64("chat_id", chat.ID),
		zap.Int("message_id", m.MessageID),
	)

	verdict, err := sn.classifier.Classify(ctx, text)
	if err != nil {
		entry.WithError(err).Error("cant classify message")
		return false
	}
	verdict = spam.AdjustForGreeting(verdict, text)
	if verdict.Label != spam.LabelSpam || verdict.Probability < sn.scamControl.AlertThreshold {
		return false
	}

	observability.Logger.Warn("likely scam message",
		zap.Int64("chat_id", chat.ID),
		zap.Int("message_id", m.MessageID),
		zap.Float64("probability", verdict.Probability),
	)
	entry.WithFields(log.Fields{
		"probability": verdict.Probability,
		"chat":        chat.Title,
	}).Info("opening scam vote")

	alert := api.NewMessage(chat.ID, i18n.Get("This message looks like a scam. Is it? Vote below.", lang))
	alert.ReplyParameters.MessageID = m.MessageID
	alert.DisableNotification = true
	alert.ReplyMarkup = api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData("⚠ "+i18n.Get("Scam", lang), bot.VoteCallbackData(true)),
			api.NewInlineKeyboardButtonData("✅ "+i18n.Get("Legit", lang), bot.VoteCallbackData(false)),
		),
	)
	sent, err := b.Send(alert)
	if err != nil {
		entry.WithError(err).Error("cant send vote alert")
		return false
	}

	if err := sn.s.GetDB().InitVoting(ctx, chat.ID, m.MessageID, sent.MessageID); err != nil {
		entry.WithError(err).Error("cant open voting")
		sn.deleteMessage(ctx, chat.ID, sent.MessageID)
		return false
	}

	groupID, messageID := chat.ID, m.MessageID
	sn.sch.After(sn.scamControl.VotingWindow, func() {
		sn.concludeVote(context.Background(), groupID, messageID, lang)
	})
	return true
}

func (sn *Sentinel) castVote(ctx context.Context, cq *api.CallbackQuery, cb bot.VoteCallback, chat *api.Chat, user *api.User) error {
	entry := sn.getLogEntry().WithField("method", "castVote")
	lang := sn.s.GetLanguage(chat, user)

	if chat == nil || user == nil || cq.Message == nil || cq.Message.ReplyToMessage == nil {
		sn.answer(cq, "")
		return nil
	}
	flaggedID := cq.Message.ReplyToMessage.MessageID

	result, err := sn.s.GetDB().AddVoter(ctx, chat.ID, flaggedID, user.ID)
	if err != nil {
		entry.WithError(err).Error("cant record voter")
		sn.answer(cq, i18n.Get("Something went wrong, please try again.", lang))
		return nil
	}
	if result == db.VoteAlreadyCounted {
		sn.answer(cq, i18n.Get("You have already voted.", lang))
		return nil
	}

	if err := sn.s.GetDB().IncrementVote(ctx, chat.ID, flaggedID, cb.Scam); err != nil {
		entry.WithError(err).Error("cant increment tally")
		sn.answer(cq, i18n.Get("Something went wrong, please try again.", lang))
		return nil
	}
	sn.answer(cq, i18n.Get("Vote counted, thank you!", lang))
	return nil
}

// concludeVote takes the tally exactly once and applies the community
// decision. A concurrent taker simply finds nothing and stands down.
func (sn *Sentinel) concludeVote(ctx context.Context, groupID int64, flaggedID int, lang string) {
	entry := sn.getLogEntry().WithFields(log.Fields{
		"method":     "concludeVote",
		"group_id":   groupID,
		"message_id": flaggedID,
	})
	b := sn.s.GetBot()

	rec, err := sn.s.GetDB().TakeVoting(ctx, groupID, flaggedID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			entry.Debug("voting already concluded")
			return
		}
		entry.WithError(err).Error("cant take voting")
		return
	}

	sn.deleteMessage(ctx, groupID, rec.AlertMessageID)

	outcome, percent := tallyOutcome(rec.VoteYes, rec.VoteNo)
	var announcement string
	switch outcome {
	case outcomeNoVotes:
		entry.Debug("no votes cast")
		observability.RecordScamMessage("no_votes")
		return
	case outcomeScam:
		sn.deleteMessage(ctx, groupID, flaggedID)
		observability.RecordScamMessage("removed")
		announcement = fmt.Sprintf(i18n.Get("The community voted scam (%d%%). The message was removed.", lang), percent)
	case outcomeKeep:
		observability.RecordScamMessage("kept")
		announcement = fmt.Sprintf(i18n.Get("The community voted legit (%d%%). The message stays.", lang), percent)
	case outcomeTie:
		observability.RecordScamMessage("tie")
		announcement = i18n.Get("The community could not decide, the message stays.", lang)
	}

	msg := api.NewMessage(groupID, announcement)
	msg.DisableNotification = true
	sent, err := b.Send(msg)
	if err != nil {
		entry.WithError(err).Error("cant announce outcome")
		return
	}
	sn.sch.After(sn.scamControl.AnnouncementTTL, func() {
		sn.deleteMessage(context.Background(), groupID, sent.MessageID)
	})
}

func (sn *Sentinel) answerMention(ctx context.Context, chat *api.Chat, m *api.Message, text string) {
	entry := sn.getLogEntry().WithField("method", "answerMention")
	b := sn.s.GetBot()
	lang := sn.s.GetLanguage(chat, m.From)

	question := strings.TrimSpace(strings.ReplaceAll(text, "@"+b.Self.UserName, ""))
	askCtx, cancel := context.WithTimeout(ctx, sn.scamControl.AssistantTimeout)
	defer cancel()
	answer, err := sn.assistant.Ask(askCtx, question)
	if err != nil || answer == "" {
		entry.WithError(err).Error("assistant call failed")
		answer = i18n.Get("Sorry, I can't answer right now, please try again later.", lang)
	}

	reply := api.NewMessage(chat.ID, answer)
	reply.ReplyParameters.MessageID = m.MessageID
	if _, err := b.Send(reply); err != nil {
		entry.WithError(err).Error("cant send assistant reply")
	}
}

func (sn *Sentinel) isMentioned(text string) bool {
	return strings.Contains(text, "@"+sn.s.GetBot().Self.UserName)
}

func (sn *Sentinel) deleteMessage(ctx context.Context, chatID int64, messageID int) {
	if err := bot.DeleteChatMessage(ctx, sn.s.GetBot(), chatID, messageID); err != nil {
		sn.getLogEntry().WithError(err).Debug("cant delete message")
	}
}

func (sn *Sentinel) answer(cq *api.CallbackQuery, text string) {
	if _, err := sn.s.GetBot().Request(api.NewCallback(cq.ID, text)); err != nil {
		sn.getLogEntry().WithError(err).Error("cant answer callback query")
	}
}

func (sn *Sentinel) getLogEntry() *log.Entry {
	return log.WithField("object", "Sentinel")
}
