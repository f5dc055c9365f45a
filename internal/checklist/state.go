package checklist

import "sync"

// Step is one entry of the ordered solicitation sequence.
type Step string

const (
	StepStorage     Step = "storage"
	StepCondition   Step = "condition"
	StepAccessories Step = "accessories"
	StepPhotos      Step = "photos"
	StepName        Step = "name"
	StepPhone       Step = "phone"
	StepEmail       Step = "email"
	StepPayout      Step = "payout"
	StepRecap       Step = "recap"
	StepSubmit      Step = "submit"

	// StepCompleted is returned once the cursor has moved past the last step.
	StepCompleted Step = "completed"
)

// sequence is the full step order. The payout step is skipped for trade-ups.
var sequence = []Step{
	StepStorage, StepCondition, StepAccessories, StepPhotos,
	StepName, StepPhone, StepEmail, StepPayout, StepRecap, StepSubmit,
}

// stepField maps each step to the record field that backs it.
var stepField = map[Step]Field{
	StepStorage:     FieldStorage,
	StepCondition:   FieldCondition,
	StepAccessories: FieldAccessories,
	StepPhotos:      FieldPhotos,
	StepName:        FieldName,
	StepPhone:       FieldPhone,
	StepEmail:       FieldEmail,
	StepPayout:      FieldPayout,
	StepRecap:       FieldRecap,
	StepSubmit:      FieldSubmitted,
}

// BackingField returns the record field behind step.
func BackingField(step Step) (Field, bool) {
	f, ok := stepField[step]
	return f, ok
}

// State is the checklist of a single conversation. It is owned by the turn
// path of its session; the mutex only protects concurrent snapshot reads.
type State struct {
	mu sync.Mutex

	sessionID string
	tradeUp   bool
	record    Record

	// cursor indexes sequence and never moves backwards.
	cursor int
}

// New returns an empty checklist for sessionID.
func New(sessionID string) *State {
	return &State{sessionID: sessionID}
}

// SessionID returns the identifier the state was created with.
func (s *State) SessionID() string { return s.sessionID }

// IsTradeUp reports whether the customer is trading toward another product.
func (s *State) IsTradeUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tradeUp
}

// SetTradeUp marks the session as a trade-up. The flag is sticky.
func (s *State) SetTradeUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradeUp = true
}

// MarkFieldCollected writes value into field if the field is still absent.
// It reports whether the write happened; a present field is never
// overwritten.
func (s *State) MarkFieldCollected(field Field, value any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record.Has(field) {
		return false, nil
	}
	if err := s.record.set(field, value); err != nil {
		return false, err
	}
	return true, nil
}

// Correct overwrites field with value. It exists for confirmation-correction
// flows where the user explicitly fixes a read-back value and must not be used
// by extraction.
func (s *State) Correct(field Field, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.set(field, value)
}

// Has reports whether field has been collected.
func (s *State) Has(field Field) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Has(field)
}

// Record returns a copy of the collected record.
func (s *State) Record() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.clone()
}

// Steps returns the step sequence that applies to this session.
func (s *State) Steps() []Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepsLocked()
}

func (s *State) stepsLocked() []Step {
	out := make([]Step, 0, len(sequence))
	for _, st := range sequence {
		if st == StepPayout && s.tradeUp {
			continue
		}
		out = append(out, st)
	}
	return out
}

// CurrentStep returns the first step at or after the cursor whose backing
// field is absent, or [StepCompleted].
func (s *State) CurrentStep() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, step := s.nextLocked()
	return step
}

// Advance moves the cursor forward to the current step and returns it. The
// cursor only ever moves past steps whose field exists.
func (s *State) Advance() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, step := s.nextLocked()
	if idx > s.cursor {
		s.cursor = idx
	}
	return step
}

// StepIndex returns the cursor position in the full step sequence.
func (s *State) StepIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *State) nextLocked() (int, Step) {
	for i := s.cursor; i < len(sequence); i++ {
		st := sequence[i]
		if st == StepPayout && s.tradeUp {
			continue
		}
		if !s.record.Has(stepField[st]) {
			return i, st
		}
	}
	return len(sequence), StepCompleted
}

// IsComplete reports whether every field in [RequiredFields] is present.
func (s *State) IsComplete() bool {
	return len(s.MissingRequired()) == 0
}

// MissingRequired returns the required fields that are still absent, in
// [RequiredFields] order.
func (s *State) MissingRequired() []Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []Field
	for _, f := range RequiredFields {
		if !s.record.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// Snapshot is a point-in-time JSON view of a checklist.
type Snapshot struct {
	SessionID   string  `json:"session_id"`
	IsTradeUp   bool    `json:"is_trade_up"`
	CurrentStep Step    `json:"current_step"`
	StepIndex   int     `json:"step_index"`
	Complete    bool    `json:"complete"`
	Missing     []Field `json:"missing_required"`
	Steps       []Step  `json:"steps"`
	Collected   Record  `json:"collected"`
}

// Snapshot captures the state for reporting.
func (s *State) Snapshot() Snapshot {
	missing := s.MissingRequired()

	s.mu.Lock()
	defer s.mu.Unlock()
	_, step := s.nextLocked()
	return Snapshot{
		SessionID:   s.sessionID,
		IsTradeUp:   s.tradeUp,
		CurrentStep: step,
		StepIndex:   s.cursor,
		Complete:    len(missing) == 0,
		Missing:     missing,
		Steps:       s.stepsLocked(),
		Collected:   s.record.clone(),
	}
}
