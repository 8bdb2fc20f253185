package bot

import "strings"

// Button payloads are decoded into a typed callback exactly once, at the
// edge; handlers switch on the concrete type instead of re-parsing strings.

const (
	callbackPresetFullSecurity = "config_full_security"
	callbackPresetDisableAll   = "config_disable_all"
	callbackWizardStart        = "config_setup"
	callbackWizardPrefix       = "config_setup_"
	callbackVerificationPrefix = "vrfct_"
	callbackVotePrefix         = "msg_check_vote_scam_"
	callbackMenuPrefix         = "cmd_cb_"
)

// Wizard step identifiers, in presentation order.
const (
	StepLinkRemoval       = "link_removal"
	StepForwardedRemoval  = "forwarded_removal"
	StepHumanVerification = "human_verification"
	StepBotRemoval        = "bot_removal"
	StepAntiflood         = "antiflood"
)

// WizardSteps is the fixed order the configuration wizard walks through.
var WizardSteps = []string{
	StepLinkRemoval,
	StepForwardedRemoval,
	StepHumanVerification,
	StepBotRemoval,
	StepAntiflood,
}

// VerificationResult is the outcome a challenge answer button carries.
type VerificationResult string

const (
	VerificationCorrect    VerificationResult = "correct_captcha"
	VerificationWrong      VerificationResult = "wrong_captcha"
	VerificationRegenerate VerificationResult = "regenerate_captcha"
	VerificationWrongWeb   VerificationResult = "wrong_web"
	VerificationCorrectWeb VerificationResult = "correct_web"
)

type Callback interface{ callback() }

// PresetCallback applies a whole preset in one tap.
type PresetCallback struct {
	FullSecurity bool
}

// WizardStartCallback launches the step-by-step configuration wizard.
type WizardStartCallback struct{}

// WizardChoiceCallback records one answer inside the wizard.
type WizardChoiceCallback struct {
	Step   string
	Choice string
}

// VerificationCallback is an answer to a human verification challenge.
type VerificationCallback struct {
	Result VerificationResult
}

// VoteCallback is a community vote on a flagged message.
type VoteCallback struct {
	Scam bool
}

// MenuCallback navigates the private-chat menu.
type MenuCallback struct {
	Command string
}

// UnknownCallback carries payloads this build does not understand, e.g.
// buttons left over from an older version.
type UnknownCallback struct {
	Data string
}

func (PresetCallback) callback()       {}
func (WizardStartCallback) callback()  {}
func (WizardChoiceCallback) callback() {}
func (VerificationCallback) callback() {}
func (VoteCallback) callback()         {}
func (MenuCallback) callback()         {}
func (UnknownCallback) callback()      {}

// DecodeCallback parses a raw button payload.
func DecodeCallback(data string) Callback {
	switch data {
	case callbackPresetFullSecurity:
		return PresetCallback{FullSecurity: true}
	case callbackPresetDisableAll:
		return PresetCallback{FullSecurity: false}
	case callbackWizardStart:
		return WizardStartCallback{}
	}

	switch {
	case strings.HasPrefix(data, callbackWizardPrefix):
		rest := strings.TrimPrefix(data, callbackWizardPrefix)
		for _, step := range WizardSteps {
			if strings.HasPrefix(rest, step+"_") {
				return WizardChoiceCallback{Step: step, Choice: strings.TrimPrefix(rest, step+"_")}
			}
		}
	case strings.HasPrefix(data, callbackVerificationPrefix):
		result := VerificationResult(strings.TrimPrefix(data, callbackVerificationPrefix))
		switch result {
		case VerificationCorrect, VerificationWrong, VerificationRegenerate, VerificationWrongWeb, VerificationCorrectWeb:
			return VerificationCallback{Result: result}
		}
	case strings.HasPrefix(data, callbackVotePrefix):
		switch strings.TrimPrefix(data, callbackVotePrefix) {
		case "yes":
			return VoteCallback{Scam: true}
		case "no":
			return VoteCallback{Scam: false}
		}
	case strings.HasPrefix(data, callbackMenuPrefix):
		return MenuCallback{Command: strings.TrimPrefix(data, callbackMenuPrefix)}
	}

	return UnknownCallback{Data: data}
}

// Encode counterparts used when building keyboards.

func PresetCallbackData(fullSecurity bool) string {
	if fullSecurity {
		return callbackPresetFullSecurity
	}
	return callbackPresetDisableAll
}

func WizardStartCallbackData() string {
	return callbackWizardStart
}

func WizardChoiceCallbackData(step, choice string) string {
	return callbackWizardPrefix + step + "_" + choice
}

func VerificationCallbackData(result VerificationResult) string {
	return callbackVerificationPrefix + string(result)
}

func VoteCallbackData(scam bool) string {
	if scam {
		return callbackVotePrefix + "yes"
	}
	return callbackVotePrefix + "no"
}

func MenuCallbackData(command string) string {
	return callbackMenuPrefix + command
}
