package db

import (
	"errors"
	"strconv"
	"time"
)

var ErrNotFound = errors.New("not found")

// Enumerated values of the persisted group configuration. The stored shape is
// externally visible (the /config report renders it field by field), so the
// string values are part of the contract.
const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"

	ChoiceYes = "yes"
	ChoiceNo  = "no"

	VerificationNone  = "no"
	VerificationImage = "image"
	VerificationWeb   = "web"

	AntifloodOff = "no"
)

// AntifloodChoices are the limits offered by the configuration wizard.
var AntifloodChoices = []string{"3", "5", "10", "15", AntifloodOff}

type (
	// GroupConfig is the per-group moderation configuration, one row per
	// group, created on first admin interaction.
	GroupConfig struct {
		GroupID           int64     `db:"group_id"`
		GuardyStatus      string    `db:"guardy_status"`
		LinkRemoval       string    `db:"link_removal"`
		ForwardedRemoval  string    `db:"forwarded_removal"`
		HumanVerification string    `db:"human_verification"`
		BotRemoval        string    `db:"bot_removal"`
		Antiflood         string    `db:"antiflood"`
		CreatedAt         time.Time `db:"created_at"`
		UpdatedAt         time.Time `db:"updated_at"`
	}

	// VerificationRecord marks a pending human verification for (group, user).
	// Its presence IS the pending state: the record is deleted on any terminal
	// outcome, so "no record" means verified or never challenged.
	VerificationRecord struct {
		GroupID          int64     `db:"group_id"`
		UserID           int64     `db:"user_id"`
		GroupTitle       string    `db:"group_title"`
		GroupUsername    string    `db:"group_username"`
		WelcomeMessageID int       `db:"welcome_message_id"`
		Kind             string    `db:"kind"`
		CreatedAt        time.Time `db:"created_at"`
	}

	// VotingRecord is the tally of one community scam vote, keyed by
	// (group, flagged message). Voter IDs live in a companion set to keep
	// the one-vote-per-user check an atomic insert.
	VotingRecord struct {
		GroupID        int64     `db:"group_id"`
		MessageID      int       `db:"message_id"`
		AlertMessageID int       `db:"alert_message_id"`
		VoteYes        int       `db:"vote_yes"`
		VoteNo         int       `db:"vote_no"`
		CreatedAt      time.Time `db:"created_at"`
	}

	Group struct {
		GroupID     int64     `db:"group_id"`
		Title       string    `db:"title"`
		Username    string    `db:"username"`
		Type        string    `db:"type"`
		MemberCount int       `db:"member_count"`
		AddedBy     int64     `db:"added_by"`
		CreatedAt   time.Time `db:"created_at"`
	}

	User struct {
		UserID    int64     `db:"user_id"`
		Username  string    `db:"username"`
		FirstName string    `db:"first_name"`
		LastName  string    `db:"last_name"`
		CreatedAt time.Time `db:"created_at"`
	}
)

func DefaultGroupConfig(groupID int64) *GroupConfig {
	return &GroupConfig{
		GroupID:           groupID,
		GuardyStatus:      StatusDisabled,
		LinkRemoval:       ChoiceNo,
		ForwardedRemoval:  ChoiceNo,
		HumanVerification: VerificationNone,
		BotRemoval:        ChoiceNo,
		Antiflood:         AntifloodOff,
	}
}

// FullSecurityConfig is the one-shot maximal-protection preset.
func FullSecurityConfig(groupID int64) *GroupConfig {
	return &GroupConfig{
		GroupID:           groupID,
		GuardyStatus:      StatusEnabled,
		LinkRemoval:       ChoiceYes,
		ForwardedRemoval:  ChoiceYes,
		HumanVerification: VerificationWeb,
		BotRemoval:        ChoiceYes,
		Antiflood:         "10",
	}
}

// DisabledConfig is the one-shot all-off preset.
func DisabledConfig(groupID int64) *GroupConfig {
	return &GroupConfig{
		GroupID:           groupID,
		GuardyStatus:      StatusDisabled,
		LinkRemoval:       ChoiceNo,
		ForwardedRemoval:  ChoiceNo,
		HumanVerification: VerificationNone,
		BotRemoval:        ChoiceNo,
		Antiflood:         AntifloodOff,
	}
}

// AntifloodLimit returns the per-20s message limit and whether antiflood is
// enabled at all. A disabled feature is the "no" value, never limit zero.
func (c *GroupConfig) AntifloodLimit() (int, bool) {
	if c == nil || c.Antiflood == "" || c.Antiflood == AntifloodOff {
		return 0, false
	}
	limit, err := strconv.Atoi(c.Antiflood)
	if err != nil || limit <= 0 {
		return 0, false
	}
	return limit, true
}

func (c *GroupConfig) Enabled() bool {
	return c != nil && c.GuardyStatus == StatusEnabled
}

// TotalVotes cast in a voting record.
func (v *VotingRecord) TotalVotes() int {
	if v == nil {
		return 0
	}
	return v.VoteYes + v.VoteNo
}
