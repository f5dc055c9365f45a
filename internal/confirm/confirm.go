// Package confirm decides whether a user/assistant turn pair confirms the
// read-back summary and may trigger submission.
package confirm

import (
	"strings"

	"github.com/MrWong99/tradein/internal/checklist"
)

// BotPhrases mark an assistant message that asks the user to confirm.
var BotPhrases = []string{"everything correct", "all set", "confirm", "is that right", "sound good"}

// UserPhrases mark a user message that affirms.
var UserPhrases = []string{"yes", "correct", "ok", "okay", "yep", "yeah", "sure"}

// Checklist is the completeness view the detector needs.
// *checklist.State satisfies it.
type Checklist interface {
	IsComplete() bool
	MissingRequired() []checklist.Field
}

// Decision is the outcome of evaluating one turn pair.
type Decision struct {
	BotAsked      bool
	UserConfirmed bool

	// Ready is true when the checklist holds every required field.
	Ready bool

	// Missing lists the absent required fields when Ready is false.
	Missing []checklist.Field
}

// Triggered reports whether both predicates fired.
func (d Decision) Triggered() bool { return d.BotAsked && d.UserConfirmed }

// Submit reports whether the turn should issue a submission.
func (d Decision) Submit() bool { return d.Triggered() && d.Ready }

// Detect evaluates the latest user message against the latest assistant
// message. Completeness is only computed when the pair triggers.
func Detect(user, assistant string, cl Checklist) Decision {
	d := Decision{
		BotAsked:      containsAny(assistant, BotPhrases),
		UserConfirmed: containsAny(user, UserPhrases),
	}
	if !d.Triggered() {
		return d
	}
	d.Missing = cl.MissingRequired()
	d.Ready = cl.IsComplete() && len(d.Missing) == 0
	return d
}

func containsAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
