// Package abtest assigns users to experiment variants deterministically.
package abtest

import (
	"github.com/spaolacci/murmur3"
)

// Buckets is the resolution of an assignment.
const Buckets = 100

// Bucket maps (experiment, bot, user) to a stable bucket in [0, Buckets).
func Bucket(experiment, botID, userID string) int {
	h := murmur3.Sum64([]byte(experiment + ":" + botID + ":" + userID))
	return int(h % Buckets)
}

// Splitter decides whether a user is in the treatment group of an experiment.
type Splitter struct {
	experiment string
	percent    int
}

// NewSplitter creates a Splitter enabling the treatment for percent of the users.
// percent is clamped to [0, 100].
func NewSplitter(experiment string, percent int) *Splitter {
	if percent < 0 {
		percent = 0
	}
	if percent > Buckets {
		percent = Buckets
	}
	return &Splitter{experiment: experiment, percent: percent}
}

// Enabled reports whether (botID, userID) falls in the treatment group.
func (s *Splitter) Enabled(botID, userID string) bool {
	if s == nil || s.percent == 0 {
		return false
	}
	return Bucket(s.experiment, botID, userID) < s.percent
}

// Variant returns "treatment" or "control" for (botID, userID).
func (s *Splitter) Variant(botID, userID string) string {
	if s.Enabled(botID, userID) {
		return "treatment"
	}
	return "control"
}
