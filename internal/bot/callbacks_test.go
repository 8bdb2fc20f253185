package bot

import (
	"reflect"
	"testing"
)

func TestDecodeCallback(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		data string
		want Callback
	}{
		{"config_full_security", PresetCallback{FullSecurity: true}},
		{"config_disable_all", PresetCallback{FullSecurity: false}},
		{"config_setup", WizardStartCallback{}},
		{"config_setup_link_removal_yes", WizardChoiceCallback{Step: StepLinkRemoval, Choice: "yes"}},
		{"config_setup_human_verification_image", WizardChoiceCallback{Step: StepHumanVerification, Choice: "image"}},
		{"config_setup_antiflood_10", WizardChoiceCallback{Step: StepAntiflood, Choice: "10"}},
		{"config_setup_antiflood_no", WizardChoiceCallback{Step: StepAntiflood, Choice: "no"}},
		{"vrfct_correct_captcha", VerificationCallback{Result: VerificationCorrect}},
		{"vrfct_regenerate_captcha", VerificationCallback{Result: VerificationRegenerate}},
		{"vrfct_wrong_web", VerificationCallback{Result: VerificationWrongWeb}},
		{"msg_check_vote_scam_yes", VoteCallback{Scam: true}},
		{"msg_check_vote_scam_no", VoteCallback{Scam: false}},
		{"cmd_cb_features", MenuCallback{Command: "features"}},
		{"", UnknownCallback{Data: ""}},
		{"config_setup_unknown_step_yes", UnknownCallback{Data: "config_setup_unknown_step_yes"}},
		{"vrfct_bogus", UnknownCallback{Data: "vrfct_bogus"}},
		{"msg_check_vote_scam_maybe", UnknownCallback{Data: "msg_check_vote_scam_maybe"}},
		{"legacy_button", UnknownCallback{Data: "legacy_button"}},
	} {
		got := DecodeCallback(tt.data)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("DecodeCallback(%q) = %#v, want %#v", tt.data, got, tt.want)
		}
	}
}

func TestCallbackRoundTrip(t *testing.T) {
	t.Parallel()

	for _, data := range []string{
		PresetCallbackData(true),
		PresetCallbackData(false),
		WizardStartCallbackData(),
		WizardChoiceCallbackData(StepForwardedRemoval, "no"),
		WizardChoiceCallbackData(StepAntiflood, "15"),
		VerificationCallbackData(VerificationWrong),
		VoteCallbackData(true),
		MenuCallbackData("config"),
	} {
		if _, unknown := DecodeCallback(data).(UnknownCallback); unknown {
			t.Errorf("own payload %q decodes as unknown", data)
		}
	}
}
