// Package extract turns a single user utterance into zero or more newly
// collected trade-in fields.
//
// Rules run in a fixed precedence order and each is gated on its target field
// still being absent, so running the engine twice against unchanged state
// yields the same output and never re-fires a rule whose field is collected.
// The engine only reads state; merging is the caller's job.
package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/tradein/internal/checklist"
	"github.com/MrWong99/tradein/internal/extract/phonetic"
)

// Output keys. Contact and photo fields use their wire names; callers map
// them back with [checklist.Canonical].
const (
	KeyBrand       = "brand"
	KeyModel       = "model"
	KeyStorage     = "storage"
	KeyCondition   = "condition"
	KeyEmail       = "contact_email"
	KeyPhone       = "contact_phone"
	KeyAccessories = "accessories"
	KeyPhotos      = "photos_acknowledged"
	KeyPayout      = "payout"
	KeyName        = "contact_name"
)

// View is the read-only slice of a checklist the engine consults.
// *checklist.State satisfies it.
type View interface {
	Has(checklist.Field) bool
	IsTradeUp() bool
	CurrentStep() checklist.Step
}

// Extracted is one newly extracted field. Value is a string or a bool.
type Extracted struct {
	Key   string
	Value any
}

// Result is the output of one [Engine.Extract] call. Fields are in rule
// order.
type Result struct {
	Fields []Extracted

	// TradeUp is set when the utterance expresses trade-up intent. It is a
	// flag, not a field, and does not count toward Fields.
	TradeUp bool
}

// Empty reports whether no field was extracted.
func (r Result) Empty() bool { return len(r.Fields) == 0 }

// Map returns the extracted fields keyed by output key.
func (r Result) Map() map[string]any {
	m := make(map[string]any, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Key] = f.Value
	}
	return m
}

type keyword struct {
	match string
	value string
}

// conditionTable is scanned top to bottom and the first substring hit wins.
var conditionTable = []keyword{
	{"mint", "mint"},
	{"good", "good"},
	{"fair", "fair"},
	{"faulty", "faulty"},
	{"broken", "faulty"},
}

// payoutTable is scanned top to bottom and the first substring hit wins.
var payoutTable = []keyword{
	{"paynow", "PayNow"},
	{"pay now", "PayNow"},
	{"bank transfer", "Bank Transfer"},
	{"cash", "Cash"},
}

var tradeUpPhrases = []string{"trade up", "trade-up", "tradeup", "upgrade to", "top up", "top-up"}

var (
	storageRe     = regexp.MustCompile(`(?i)\b(\d+)\s?(GB|TB|MB)\b`)
	emailRe       = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	accessoriesRe = regexp.MustCompile(`(?i)\bbox(es)?\b|accessor`)
	affirmRe      = regexp.MustCompile(`(?i)\b(yes|have|got)\b`)
	photosRe      = regexp.MustCompile(`(?i)photo|picture|image`)
	negationRe    = regexp.MustCompile(`(?i)\b(no|not|none|don't|don’t|dont)\b`)
)

const (
	phoneMinDigits     = 8
	phoneMaxDigits     = 15
	phoneMinDigitRatio = 0.5
	nameMaxDigitRatio  = 0.3
	nameMaxWords       = 4
	nameMinLength      = 2
)

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithAliases replaces the built-in device alias table.
func WithAliases(t *AliasTable) Option {
	return func(e *Engine) {
		e.aliases = t
	}
}

// WithPhonetic sets the matcher used to repair misheard device words before a
// second alias pass. A nil matcher disables the fallback.
func WithPhonetic(m *phonetic.Matcher) Option {
	return func(e *Engine) {
		e.phonetic = m
	}
}

// Engine applies the ordered extraction rules. It holds no per-session state
// and is safe for concurrent use.
type Engine struct {
	aliases  *AliasTable
	phonetic *phonetic.Matcher
}

var defaultTable = mustAliasTable(DefaultAliases)

func mustAliasTable(f AliasFile) *AliasTable {
	t, err := NewAliasTable(f)
	if err != nil {
		panic(err)
	}
	return t
}

// NewEngine returns an [Engine] using the default alias table and phonetic
// matcher unless overridden by opts.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		aliases:  defaultTable,
		phonetic: phonetic.New(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract runs every rule against text and returns the fields that are new
// relative to state.
func (e *Engine) Extract(text string, state View) Result {
	var res Result
	lower := strings.ToLower(text)
	add := func(key string, v any) {
		res.Fields = append(res.Fields, Extracted{Key: key, Value: v})
	}
	absent := func(key string) bool {
		return !state.Has(checklist.Canonical(key))
	}

	// 1. Device alias.
	device, deviceOK := e.resolveDevice(text)
	if deviceOK {
		if absent(KeyBrand) {
			add(KeyBrand, device.Brand)
		}
		if absent(KeyModel) {
			add(KeyModel, device.Model)
		}
	}

	// 2. Storage.
	storage := storageRe.FindStringSubmatch(text)
	if storage != nil && absent(KeyStorage) {
		add(KeyStorage, storage[1]+strings.ToUpper(storage[2]))
	}

	// 3. Condition.
	condition, conditionOK := scan(lower, conditionTable)
	if conditionOK && absent(KeyCondition) {
		add(KeyCondition, condition)
	}

	// 4. Email.
	email := emailRe.FindString(text)
	if email != "" && absent(KeyEmail) {
		add(KeyEmail, email)
	}

	// 5. Phone.
	phone, phoneOK := phoneCandidate(text)
	if phoneOK && absent(KeyPhone) {
		add(KeyPhone, phone)
	}

	// 6. Accessories.
	accessoriesOK := accessoriesRe.MatchString(text)
	if accessoriesOK && absent(KeyAccessories) {
		add(KeyAccessories, affirmRe.MatchString(text))
	}

	// 7. Photos.
	photosOK := photosRe.MatchString(text)
	if photosOK && absent(KeyPhotos) {
		add(KeyPhotos, !negationRe.MatchString(text))
	}

	// Trade-up intent and payout.
	for _, p := range tradeUpPhrases {
		if strings.Contains(lower, p) {
			res.TradeUp = true
			break
		}
	}
	payout, payoutOK := scan(lower, payoutTable)
	if payoutOK && !res.TradeUp && !state.IsTradeUp() && absent(KeyPayout) {
		add(KeyPayout, payout)
	}

	// 8. Name.
	otherKeywords := deviceOK || storage != nil || conditionOK || email != "" ||
		phoneOK || accessoriesOK || photosOK || payoutOK || res.TradeUp
	if !otherKeywords && absent(KeyName) && state.CurrentStep() == checklist.StepName {
		if name, ok := nameCandidate(text); ok {
			add(KeyName, name)
		}
	}

	return res
}

// resolveDevice tries the alias table on the raw text and then once more on
// a phonetically corrected transcript.
func (e *Engine) resolveDevice(text string) (Device, bool) {
	if e.aliases == nil {
		return Device{}, false
	}
	if d, ok := e.aliases.Resolve(text); ok {
		return d, true
	}
	if e.phonetic == nil {
		return Device{}, false
	}
	corrected, changed := e.phonetic.Correct(text, e.aliases.Vocabulary())
	if !changed {
		return Device{}, false
	}
	return e.aliases.Resolve(corrected)
}

func scan(lower string, table []keyword) (string, bool) {
	for _, k := range table {
		if strings.Contains(lower, k.match) {
			return k.value, true
		}
	}
	return "", false
}

// phoneCandidate concatenates all digits of text and accepts them when the
// count is within bounds and digits make up at least half of the message.
func phoneCandidate(text string) (string, bool) {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return "", false
	}
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	n := b.Len()
	if n < phoneMinDigits || n > phoneMaxDigits {
		return "", false
	}
	if float64(n)/float64(total) < phoneMinDigitRatio {
		return "", false
	}
	return b.String(), true
}

func nameCandidate(text string) (string, bool) {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return "", false
	}
	digits := 0
	for _, r := range text {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if float64(digits)/float64(total) >= nameMaxDigitRatio {
		return "", false
	}
	if len(strings.Fields(text)) > nameMaxWords {
		return "", false
	}
	name := strings.TrimSpace(strings.TrimRightFunc(strings.TrimSpace(text), unicode.IsPunct))
	if utf8.RuneCountInString(name) < nameMinLength {
		return "", false
	}
	return name, true
}
