package handlers

import "math"

type voteOutcome int

const (
	outcomeNoVotes voteOutcome = iota
	outcomeScam
	outcomeKeep
	outcomeTie
)

// tallyOutcome folds a finished vote into its outcome and the percentage of
// the winning side, rounded for display. The percentage is meaningless for
// outcomeNoVotes and outcomeTie.
func tallyOutcome(yes, no int) (voteOutcome, int) {
	total := yes + no
	if total == 0 {
		return outcomeNoVotes, 0
	}
	switch {
	case yes > no:
		return outcomeScam, roundPercent(yes, total)
	case no > yes:
		return outcomeKeep, roundPercent(no, total)
	default:
		return outcomeTie, 0
	}
}

func roundPercent(part, total int) int {
	return int(math.Round(float64(part) / float64(total) * 100))
}
