package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/axioma-ai-labs/guardy/internal/antiflood"
	"github.com/axioma-ai-labs/guardy/internal/bot"
	"github.com/axioma-ai-labs/guardy/internal/db"
	"github.com/axioma-ai-labs/guardy/internal/i18n"
	"github.com/axioma-ai-labs/guardy/internal/observability"
	"github.com/axioma-ai-labs/guardy/internal/sched"
)

// wizardConfirmTTL is how long the "configuration saved" report stays in
// the group before it is cleaned up. Admins can re-read it with /config.
const wizardConfirmTTL = 5 * time.Second

// Admin owns everything a group administrator touches: the bootstrap flow
// when the bot is added to a group, the one-tap presets, the step-by-step
// configuration wizard and the private-chat menus.
type Admin struct {
	s       bot.Service
	sch     *sched.Scheduler
	flood   *antiflood.Tracker
	wizards *wizardStore
}

func NewAdmin(s bot.Service, sch *sched.Scheduler, flood *antiflood.Tracker) *Admin {
	return &Admin{
		s:       s,
		sch:     sch,
		flood:   flood,
		wizards: newWizardStore(),
	}
}

func (a *Admin) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u.MyChatMember != nil {
		return a.handleOwnMembership(ctx, u.MyChatMember)
	}

	if u.CallbackQuery != nil {
		return a.handleCallback(ctx, u.CallbackQuery, chat, user)
	}

	if chat == nil || user == nil {
		return true, nil
	}
	if u.Message == nil || user.IsBot || !u.Message.IsCommand() {
		return true, nil
	}
	return a.handleCommand(ctx, u.Message, chat, user)
}

// handleOwnMembership reacts to the bot being added to or removed from a
// group.
func (a *Admin) handleOwnMembership(ctx context.Context, mcm *api.ChatMemberUpdated) (bool, error) {
	entry := a.getLogEntry().WithField("method", "handleOwnMembership")
	b := a.s.GetBot()
	if mcm.NewChatMember.User == nil || mcm.NewChatMember.User.ID != b.Self.ID {
		return true, nil
	}

	chat := mcm.Chat
	switch mcm.NewChatMember.Status {
	case "member", "administrator":
		entry.WithField("chat", chat.Title).Info("added to group")
		if err := a.s.GetDB().AddGroup(ctx, &db.Group{
			GroupID:  chat.ID,
			Title:    chat.Title,
			Username: chat.UserName,
			Type:     chat.Type,
			AddedBy:  mcm.From.ID,
		}); err != nil {
			entry.WithError(err).Error("cant register group")
		}

		msg := api.NewMessage(chat.ID, a.tr(&chat, nil,
			"Thanks for adding me! I can remove links and forwarded messages, verify that new members are human, kick other bots and mute flooders.\n\nPick a preset or configure each protection yourself (administrators only):"))
		msg.ReplyMarkup = bootstrapKeyboard(a.tr(&chat, nil, "Full security"), a.tr(&chat, nil, "Disable all"), a.tr(&chat, nil, "Custom setup"))
		if _, err := b.Send(msg); err != nil {
			entry.WithError(err).Error("cant send intro")
		}
		return false, nil

	case "left", "kicked":
		entry.WithField("chat", chat.Title).Info("removed from group")
		if err := a.s.GetDB().DeleteGroupConfig(ctx, chat.ID); err != nil {
			entry.WithError(err).Error("cant delete group config")
		}
		if err := a.s.GetDB().DeleteGroup(ctx, chat.ID); err != nil {
			entry.WithError(err).Error("cant delete group")
		}
		a.flood.Forget(chat.ID)
		return false, nil
	}
	return true, nil
}

func (a *Admin) handleCallback(ctx context.Context, cq *api.CallbackQuery, chat *api.Chat, user *api.User) (bool, error) {
	entry := a.getLogEntry().WithField("method", "handleCallback")
	b := a.s.GetBot()

	decoded := bot.DecodeCallback(cq.Data)
	switch cb := decoded.(type) {
	case bot.PresetCallback:
		if chat == nil || user == nil {
			return true, nil
		}
		if !a.gateAdmin(ctx, cq, chat.ID, user.ID) {
			return false, nil
		}
		cfg := db.DisabledConfig(chat.ID)
		confirmation := a.tr(chat, user, "All protections are now disabled.")
		if cb.FullSecurity {
			cfg = db.FullSecurityConfig(chat.ID)
			confirmation = a.tr(chat, user, "Full security enabled: links and forwards are removed, new members are verified, bots are kicked and flooders are muted.")
		}
		if err := a.s.SetGroupConfig(ctx, cfg); err != nil {
			return false, errors.WithMessage(err, "cant apply preset")
		}
		observability.RecordModerationAction("preset")
		a.answer(cq, a.tr(chat, user, "Done"))
		a.editText(chat.ID, cq.Message.MessageID, confirmation)
		return false, nil

	case bot.WizardStartCallback:
		if chat == nil || user == nil {
			return true, nil
		}
		if !a.gateAdmin(ctx, cq, chat.ID, user.ID) {
			return false, nil
		}
		session := a.wizards.start(chat.ID, cq.Message.MessageID)
		a.answer(cq, "")
		a.renderStep(chat, user, session)
		return false, nil

	case bot.WizardChoiceCallback:
		if chat == nil || user == nil {
			return true, nil
		}
		if !a.gateAdmin(ctx, cq, chat.ID, user.ID) {
			return false, nil
		}
		session := a.wizards.get(chat.ID)
		if session == nil {
			a.answer(cq, a.tr(chat, user, "This setup is no longer active, start over with /config."))
			return false, nil
		}
		if !session.apply(cb.Step, cb.Choice) {
			entry.WithFields(log.Fields{"step": cb.Step, "choice": cb.Choice}).Warn("stale or invalid wizard choice")
			a.answer(cq, "")
			return false, nil
		}
		if !session.complete() {
			a.answer(cq, "")
			a.renderStep(chat, user, session)
			return false, nil
		}
		a.wizards.drop(chat.ID)
		cfg := session.config()
		if err := a.s.SetGroupConfig(ctx, cfg); err != nil {
			return false, errors.WithMessage(err, "cant commit configuration")
		}
		observability.RecordModerationAction("configure")
		a.answer(cq, a.tr(chat, user, "Saved"))
		a.editText(chat.ID, session.messageID, a.tr(chat, user, "Configuration saved:")+"\n"+renderConfigReport(cfg))
		groupID, messageID := chat.ID, session.messageID
		a.sch.After(wizardConfirmTTL, func() {
			if err := bot.DeleteChatMessage(context.Background(), b, groupID, messageID); err != nil {
				entry.WithError(err).Debug("cant delete wizard confirmation")
			}
		})
		return false, nil

	case bot.MenuCallback:
		a.answer(cq, "")
		if cq.Message != nil {
			a.renderMenu(chat, user, cq.Message.MessageID, cb.Command)
		}
		return false, nil
	}

	return true, nil
}

func (a *Admin) handleCommand(ctx context.Context, m *api.Message, chat *api.Chat, user *api.User) (bool, error) {
	entry := a.getLogEntry().WithField("method", "handleCommand").WithField("command", m.Command())
	b := a.s.GetBot()

	switch m.Command() {
	case "start":
		if !chat.IsPrivate() {
			return true, nil
		}
		// Deep links carry a verification payload and belong to the
		// verification flow.
		if strings.HasPrefix(m.CommandArguments(), "verify_") {
			return true, nil
		}
		if exists, err := a.s.GetDB().UserExists(ctx, user.ID); err == nil && !exists {
			if err := a.s.GetDB().AddUser(ctx, &db.User{
				UserID:    user.ID,
				Username:  user.UserName,
				FirstName: user.FirstName,
				LastName:  user.LastName,
			}); err != nil {
				entry.WithError(err).Error("cant register user")
			}
		}
		msg := api.NewMessage(chat.ID, a.tr(chat, user,
			"Hi! Add me to a group and give me the rights to delete messages and restrict members, then use the buttons the group receives to configure protections."))
		msg.ReplyMarkup = menuKeyboard(a.tr(chat, user, "Features"), a.tr(chat, user, "Help"))
		_ = tool.Err(b.Send(msg))
		return false, nil

	case "help":
		msg := api.NewMessage(chat.ID, a.tr(chat, user, helpText))
		msg.DisableNotification = true
		_ = tool.Err(b.Send(msg))
		return false, nil

	case "features":
		msg := api.NewMessage(chat.ID, a.tr(chat, user, featuresText))
		msg.DisableNotification = true
		_ = tool.Err(b.Send(msg))
		return false, nil

	case "config":
		if chat.IsPrivate() {
			return true, nil
		}
		if !a.requireAdmin(ctx, chat, user) {
			return false, nil
		}
		cfg, err := a.s.GetGroupConfig(ctx, chat.ID)
		if err != nil {
			return false, err
		}
		msg := api.NewMessage(chat.ID, a.tr(chat, user, "Current configuration:")+"\n"+renderConfigReport(cfg))
		msg.ReplyMarkup = bootstrapKeyboard(a.tr(chat, user, "Full security"), a.tr(chat, user, "Disable all"), a.tr(chat, user, "Custom setup"))
		msg.DisableNotification = true
		_ = tool.Err(b.Send(msg))
		return false, nil

	case "enable", "disable":
		if chat.IsPrivate() {
			return true, nil
		}
		if !a.requireAdmin(ctx, chat, user) {
			return false, nil
		}
		cfg, err := a.s.GetGroupConfig(ctx, chat.ID)
		if err != nil {
			return false, err
		}
		cfg.GuardyStatus = db.StatusEnabled
		reply := a.tr(chat, user, "Moderation is enabled.")
		if m.Command() == "disable" {
			cfg.GuardyStatus = db.StatusDisabled
			reply = a.tr(chat, user, "Moderation is disabled.")
		}
		if err := a.s.SetGroupConfig(ctx, cfg); err != nil {
			return false, errors.WithMessage(err, "cant toggle moderation")
		}
		msg := api.NewMessage(chat.ID, reply)
		msg.DisableNotification = true
		_ = tool.Err(b.Send(msg))
		return false, nil

	case "rules":
		if chat.IsPrivate() {
			return true, nil
		}
		cfg, err := a.s.GetGroupConfig(ctx, chat.ID)
		if err != nil {
			return false, err
		}
		lines := []string{a.tr(chat, user, "Group rules:")}
		for _, key := range rulesLines(cfg) {
			lines = append(lines, "• "+a.tr(chat, user, key))
		}
		msg := api.NewMessage(chat.ID, strings.Join(lines, "\n"))
		msg.DisableNotification = true
		_ = tool.Err(b.Send(msg))
		return false, nil

	case "adminlist":
		if chat.IsPrivate() {
			return true, nil
		}
		admins, err := b.GetChatAdministrators(api.ChatAdministratorsConfig{
			ChatConfig: api.ChatConfig{ChatID: chat.ID},
		})
		if err != nil {
			return false, errors.WithMessage(err, "cant get administrators")
		}
		names := make([]string, 0, len(admins))
		for _, admin := range admins {
			if admin.User != nil && !admin.User.IsBot {
				names = append(names, bot.GetUN(admin.User))
			}
		}
		msg := api.NewMessage(chat.ID, a.tr(chat, user, "Administrators:")+" "+strings.Join(names, ", "))
		msg.DisableNotification = true
		_ = tool.Err(b.Send(msg))
		return false, nil
	}

	entry.Trace("unknown command")
	return true, nil
}

// gateAdmin answers the callback either way but only lets administrators
// act.
func (a *Admin) gateAdmin(ctx context.Context, cq *api.CallbackQuery, groupID, userID int64) bool {
	isAdmin, err := a.s.IsGroupAdmin(ctx, groupID, userID)
	if err != nil {
		a.getLogEntry().WithError(err).Error("cant check admin status")
		return false
	}
	if !isAdmin {
		a.answer(cq, a.tr(nil, cq.From, "Only administrators can change the configuration."))
		return false
	}
	return true
}

func (a *Admin) requireAdmin(ctx context.Context, chat *api.Chat, user *api.User) bool {
	isAdmin, err := a.s.IsGroupAdmin(ctx, chat.ID, user.ID)
	if err != nil {
		a.getLogEntry().WithError(err).Error("cant check admin status")
		return false
	}
	return isAdmin
}

func (a *Admin) renderStep(chat *api.Chat, user *api.User, session *wizardSession) {
	step := session.currentStep()
	if step == "" {
		return
	}
	a.editTextWithMarkup(chat.ID, session.messageID, a.tr(chat, user, stepPrompts[step]), stepKeyboard(step, a.s.GetLanguage(chat, user)))
}

func (a *Admin) renderMenu(chat *api.Chat, user *api.User, messageID int, command string) {
	if chat == nil {
		return
	}
	text := ""
	switch command {
	case "features":
		text = a.tr(chat, user, featuresText)
	case "help":
		text = a.tr(chat, user, helpText)
	default:
		a.editTextWithMarkup(chat.ID, messageID, a.tr(chat, user,
			"Hi! Add me to a group and give me the rights to delete messages and restrict members, then use the buttons the group receives to configure protections."),
			menuKeyboard(a.tr(chat, user, "Features"), a.tr(chat, user, "Help")))
		return
	}
	back := api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData("⬅ "+a.tr(chat, user, "Back"), bot.MenuCallbackData("back")),
		),
	)
	a.editTextWithMarkup(chat.ID, messageID, text, back)
}

func (a *Admin) answer(cq *api.CallbackQuery, text string) {
	if _, err := a.s.GetBot().Request(api.NewCallback(cq.ID, text)); err != nil {
		a.getLogEntry().WithError(err).Error("cant answer callback query")
	}
}

func (a *Admin) editText(chatID int64, messageID int, text string) {
	edit := api.NewEditMessageText(chatID, messageID, text)
	if _, err := a.s.GetBot().Request(edit); err != nil {
		a.getLogEntry().WithError(err).Error("cant edit message")
	}
}

func (a *Admin) editTextWithMarkup(chatID int64, messageID int, text string, markup api.InlineKeyboardMarkup) {
	edit := api.NewEditMessageTextAndMarkup(chatID, messageID, text, markup)
	if _, err := a.s.GetBot().Request(edit); err != nil {
		a.getLogEntry().WithError(err).Error("cant edit message")
	}
}

func (a *Admin) tr(chat *api.Chat, user *api.User, key string) string {
	return i18n.Get(key, a.s.GetLanguage(chat, user))
}

func (a *Admin) getLogEntry() *log.Entry {
	return log.WithField("object", "Admin")
}

const helpText = "Commands:\n" +
	"/config - show and change the group configuration (administrators)\n" +
	"/enable - turn moderation on (administrators)\n" +
	"/disable - turn moderation off (administrators)\n" +
	"/adminlist - list the group administrators\n" +
	"/rules - show the group rules derived from the active protections\n" +
	"/features - what I can do"

const featuresText = "Protections:\n" +
	"- link removal: messages with links are deleted\n" +
	"- forwarded removal: forwarded messages are deleted\n" +
	"- human verification: new members solve a captcha before they can write\n" +
	"- bot removal: bots added by non-administrators are kicked\n" +
	"- antiflood: members sending too many messages in 20 seconds are muted for 5 minutes"

var stepPrompts = map[string]string{
	bot.StepLinkRemoval:       "Step 1 of 5. Delete messages containing links?",
	bot.StepForwardedRemoval:  "Step 2 of 5. Delete forwarded messages?",
	bot.StepHumanVerification: "Step 3 of 5. How should new members prove they are human?",
	bot.StepBotRemoval:        "Step 4 of 5. Kick bots added by non-administrators?",
	bot.StepAntiflood:         "Step 5 of 5. How many messages per 20 seconds before a member is muted?",
}

func stepKeyboard(step, lang string) api.InlineKeyboardMarkup {
	var labels map[string]string
	switch step {
	case bot.StepHumanVerification:
		labels = map[string]string{
			db.VerificationImage: "Image captcha",
			db.VerificationWeb:   "Web captcha",
			db.VerificationNone:  "None",
		}
	case bot.StepAntiflood:
		labels = map[string]string{db.AntifloodOff: "Disable"}
	default:
		labels = map[string]string{db.ChoiceYes: "Yes", db.ChoiceNo: "No"}
	}

	row := make([]api.InlineKeyboardButton, 0, len(stepChoices[step]))
	for _, choice := range stepChoices[step] {
		label, ok := labels[choice]
		if !ok {
			label = choice
		}
		row = append(row, api.NewInlineKeyboardButtonData(i18n.Get(label, lang), bot.WizardChoiceCallbackData(step, choice)))
	}
	return api.NewInlineKeyboardMarkup(row)
}

func bootstrapKeyboard(fullSecurity, disableAll, setup string) api.InlineKeyboardMarkup {
	return api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData("\U0001f512 "+fullSecurity, bot.PresetCallbackData(true)),
			api.NewInlineKeyboardButtonData("\U0001f513 "+disableAll, bot.PresetCallbackData(false)),
		),
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData("⚙ "+setup, bot.WizardStartCallbackData()),
		),
	)
}

func menuKeyboard(features, help string) api.InlineKeyboardMarkup {
	return api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData(features, bot.MenuCallbackData("features")),
			api.NewInlineKeyboardButtonData(help, bot.MenuCallbackData("help")),
		),
	)
}

// rulesLines picks the rule sentences matching the group's active
// protections. The keys are translated at render time.
func rulesLines(cfg *db.GroupConfig) []string {
	if !cfg.Enabled() {
		return []string{"Moderation is currently disabled."}
	}
	lines := []string{"Be kind and stay on topic."}
	if cfg.LinkRemoval == db.ChoiceYes {
		lines = append(lines, "No links, they are removed automatically.")
	}
	if cfg.ForwardedRemoval == db.ChoiceYes {
		lines = append(lines, "No forwarded messages, they are removed automatically.")
	}
	if cfg.HumanVerification != db.VerificationNone {
		lines = append(lines, "New members must pass a verification challenge before writing.")
	}
	if cfg.BotRemoval == db.ChoiceYes {
		lines = append(lines, "Only administrators may add bots.")
	}
	if cfg.Antiflood != db.AntifloodOff {
		lines = append(lines, "Do not flood, rapid posters are muted.")
	}
	return lines
}

func renderConfigReport(cfg *db.GroupConfig) string {
	limit := cfg.Antiflood
	if limit == db.AntifloodOff {
		limit = "off"
	} else {
		limit = fmt.Sprintf("%s per 20s", limit)
	}
	return fmt.Sprintf(
		"status: %s\nlink removal: %s\nforwarded removal: %s\nhuman verification: %s\nbot removal: %s\nantiflood: %s",
		cfg.GuardyStatus, cfg.LinkRemoval, cfg.ForwardedRemoval, cfg.HumanVerification, cfg.BotRemoval, limit,
	)
}
