package db

import "context"

// VoteResult is the outcome of a single cast-vote attempt.
type VoteResult int

const (
	VoteAccepted VoteResult = iota
	VoteAlreadyCounted
)

// Client is the persistence surface of the moderation engine. Every mutation
// is keyed by a natural key and upsert-safe.
type Client interface {
	Close() error

	// Group configuration.
	GetGroupConfig(ctx context.Context, groupID int64) (*GroupConfig, error)
	SetGroupConfig(ctx context.Context, cfg *GroupConfig) error
	DeleteGroupConfig(ctx context.Context, groupID int64) error

	// Pending human verifications.
	GetVerification(ctx context.Context, groupID, userID int64) (*VerificationRecord, error)
	GetLatestVerification(ctx context.Context, userID int64) (*VerificationRecord, error)
	PutVerification(ctx context.Context, rec *VerificationRecord) error
	DeleteVerification(ctx context.Context, groupID, userID int64) error

	// Community scam voting. AddVoter is an atomic compare-and-insert on the
	// voter set; TakeVoting atomically reads and deletes the record so a vote
	// conclusion happens at most once.
	InitVoting(ctx context.Context, groupID int64, messageID, alertMessageID int) error
	AddVoter(ctx context.Context, groupID int64, messageID int, userID int64) (VoteResult, error)
	HasVoted(ctx context.Context, groupID int64, messageID int, userID int64) (bool, error)
	IncrementVote(ctx context.Context, groupID int64, messageID int, yes bool) error
	TakeVoting(ctx context.Context, groupID int64, messageID int) (*VotingRecord, error)

	// Registries.
	GroupExists(ctx context.Context, groupID int64) (bool, error)
	AddGroup(ctx context.Context, group *Group) error
	DeleteGroup(ctx context.Context, groupID int64) error
	UserExists(ctx context.Context, userID int64) (bool, error)
	AddUser(ctx context.Context, user *User) error
}
