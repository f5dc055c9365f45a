package extract

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Device is a canonical (brand, model) pair produced by alias normalisation.
type Device struct {
	Brand string
	Model string
}

// Phrase maps fixed spoken phrases to a canonical device.
//
// Example:
//
//	- match: ["switch lite", "switch light"]
//	  brand: Nintendo
//	  model: Nintendo Switch Lite
type Phrase struct {
	Match []string `yaml:"match"`
	Brand string   `yaml:"brand"`
	Model string   `yaml:"model"`
}

// Family maps a product-family token followed by a generation number and
// optional suffixes to a canonical device. "ps5 slim digital" against the
// PlayStation family yields model "PlayStation 5 Slim Digital".
type Family struct {
	Brand    string   `yaml:"brand"`
	Model    string   `yaml:"model"`
	Tokens   []string `yaml:"tokens"`
	Suffixes []string `yaml:"suffixes"`
}

// AliasFile is the top-level structure of an alias YAML file.
type AliasFile struct {
	Phrases  []Phrase `yaml:"phrases"`
	Families []Family `yaml:"families"`
}

// AliasTable resolves device mentions in free text. Phrases are tried in
// table order before families, first match wins. It is read-only after
// construction and safe for concurrent use.
type AliasTable struct {
	phrases    []compiledPhrase
	families   []compiledFamily
	vocabulary []string
}

type compiledPhrase struct {
	re     *regexp.Regexp
	device Device
}

type compiledFamily struct {
	re       *regexp.Regexp
	brand    string
	model    string
	suffixes map[string]string // lower-case -> canonical spelling
}

// NewAliasTable compiles f into a lookup table.
func NewAliasTable(f AliasFile) (*AliasTable, error) {
	t := &AliasTable{}
	vocab := make(map[string]struct{})

	for i, p := range f.Phrases {
		if p.Brand == "" || p.Model == "" {
			return nil, fmt.Errorf("extract: phrases[%d]: brand and model are required", i)
		}
		if len(p.Match) == 0 {
			return nil, fmt.Errorf("extract: phrases[%d]: match must not be empty", i)
		}
		for _, m := range p.Match {
			words := strings.Fields(strings.ToLower(m))
			if len(words) == 0 {
				return nil, fmt.Errorf("extract: phrases[%d]: empty match entry", i)
			}
			quoted := make([]string, len(words))
			for j, w := range words {
				quoted[j] = regexp.QuoteMeta(w)
				vocab[w] = struct{}{}
			}
			re, err := regexp.Compile(`(?i)\b` + strings.Join(quoted, `\s+`) + `\b`)
			if err != nil {
				return nil, fmt.Errorf("extract: phrases[%d]: %w", i, err)
			}
			t.phrases = append(t.phrases, compiledPhrase{re: re, device: Device{Brand: p.Brand, Model: p.Model}})
		}
	}

	for i, fam := range f.Families {
		if fam.Brand == "" || fam.Model == "" {
			return nil, fmt.Errorf("extract: families[%d]: brand and model are required", i)
		}
		if len(fam.Tokens) == 0 {
			return nil, fmt.Errorf("extract: families[%d]: tokens must not be empty", i)
		}
		tokens := make([]string, 0, len(fam.Tokens))
		for _, tok := range fam.Tokens {
			words := strings.Fields(strings.ToLower(tok))
			quoted := make([]string, len(words))
			for j, w := range words {
				quoted[j] = regexp.QuoteMeta(w)
				vocab[w] = struct{}{}
			}
			tokens = append(tokens, strings.Join(quoted, `\s*`))
		}
		suffixes := make(map[string]string, len(fam.Suffixes))
		alts := make([]string, 0, len(fam.Suffixes))
		for _, s := range fam.Suffixes {
			suffixes[strings.ToLower(s)] = s
			alts = append(alts, regexp.QuoteMeta(strings.ToLower(s)))
		}
		pattern := `(?i)\b(?:` + strings.Join(tokens, "|") + `)\s*-?\s*(\d{1,2})`
		if len(alts) > 0 {
			pattern += `((?:\s*(?:` + strings.Join(alts, "|") + `))*)\b`
		} else {
			pattern += `()\b`
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("extract: families[%d]: %w", i, err)
		}
		t.families = append(t.families, compiledFamily{re: re, brand: fam.Brand, model: fam.Model, suffixes: suffixes})
	}

	for w := range vocab {
		t.vocabulary = append(t.vocabulary, w)
	}
	slices.Sort(t.vocabulary)
	return t, nil
}

// Resolve returns the first device mentioned in text.
func (t *AliasTable) Resolve(text string) (Device, bool) {
	for _, p := range t.phrases {
		if p.re.MatchString(text) {
			return p.device, true
		}
	}
	for _, f := range t.families {
		m := f.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		parts := []string{f.model, m[1]}
		for _, s := range strings.Fields(strings.ToLower(m[2])) {
			if canon, ok := f.suffixes[s]; ok {
				parts = append(parts, canon)
			}
		}
		return Device{Brand: f.brand, Model: strings.Join(parts, " ")}, true
	}
	return Device{}, false
}

// Matches reports whether text mentions any known device.
func (t *AliasTable) Matches(text string) bool {
	_, ok := t.Resolve(text)
	return ok
}

// Vocabulary returns every lower-case word used by the table's phrases and
// family tokens, for phonetic correction.
func (t *AliasTable) Vocabulary() []string {
	return t.vocabulary
}

// LoadAliasFile reads an alias table from a YAML file.
func LoadAliasFile(path string) (*AliasTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("extract: open alias file %q: %w", path, err)
	}
	defer f.Close()

	t, err := LoadAliasesFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("extract: parse alias file %q: %w", path, err)
	}
	return t, nil
}

// LoadAliasesFromReader parses an alias table from YAML.
func LoadAliasesFromReader(r io.Reader) (*AliasTable, error) {
	var af AliasFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&af); err != nil {
		return nil, fmt.Errorf("extract: decode alias yaml: %w", err)
	}
	return NewAliasTable(af)
}

// DefaultAliases is the built-in device table used when no alias file is
// configured.
var DefaultAliases = AliasFile{
	Phrases: []Phrase{
		{Match: []string{"switch lite", "switch light"}, Brand: "Nintendo", Model: "Nintendo Switch Lite"},
		{Match: []string{"switch oled"}, Brand: "Nintendo", Model: "Nintendo Switch OLED"},
		{Match: []string{"switch 2", "switch two"}, Brand: "Nintendo", Model: "Nintendo Switch 2"},
		{Match: []string{"nintendo switch"}, Brand: "Nintendo", Model: "Nintendo Switch"},
		{Match: []string{"xbox series x"}, Brand: "Microsoft", Model: "Xbox Series X"},
		{Match: []string{"xbox series s"}, Brand: "Microsoft", Model: "Xbox Series S"},
		{Match: []string{"steam deck oled"}, Brand: "Valve", Model: "Steam Deck OLED"},
		{Match: []string{"steam deck"}, Brand: "Valve", Model: "Steam Deck"},
		{Match: []string{"rog ally"}, Brand: "ASUS", Model: "ROG Ally"},
	},
	Families: []Family{
		{
			Brand:    "Sony",
			Model:    "PlayStation",
			Tokens:   []string{"ps", "playstation", "play station"},
			Suffixes: []string{"Pro", "Slim", "Digital"},
		},
		{
			Brand:    "Apple",
			Model:    "iPhone",
			Tokens:   []string{"iphone"},
			Suffixes: []string{"Pro", "Max", "Plus", "Mini"},
		},
	},
}
