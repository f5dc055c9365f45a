// Package checklist owns the per-session trade-in record and the ordered step
// sequence the conversation solicits.
//
// The step pointer is a derived view over which fields are present rather than
// an explicit transition table, so a conversation that answers questions out
// of order still lands on the right next step.
package checklist

import "fmt"

// Field names a single datum of the trade-in record.
type Field string

const (
	FieldBrand       Field = "brand"
	FieldModel       Field = "model"
	FieldStorage     Field = "storage"
	FieldCondition   Field = "condition"
	FieldAccessories Field = "accessories"
	FieldPhotos      Field = "photos"
	FieldName        Field = "name"
	FieldPhone       Field = "phone"
	FieldEmail       Field = "email"
	FieldPayout      Field = "payout"

	// FieldRecap is set once the user has confirmed the read-back summary.
	FieldRecap Field = "recap"

	// FieldSubmitted is set once the lead was accepted by the external store.
	FieldSubmitted Field = "submitted"
)

// RequiredFields is the fixed set that must be present before a lead may be
// submitted. It is intentionally smaller than the step sequence.
var RequiredFields = []Field{
	FieldBrand, FieldModel, FieldCondition, FieldName, FieldPhone, FieldEmail,
}

// wireAliases maps field names used by tools and the extraction output to the
// canonical record field.
var wireAliases = map[string]Field{
	"contact_name":        FieldName,
	"contact_phone":       FieldPhone,
	"contact_email":       FieldEmail,
	"photos_acknowledged": FieldPhotos,
}

// Canonical maps a wire field name to its record field. Names without an
// alias pass through unchanged.
func Canonical(name string) Field {
	if f, ok := wireAliases[name]; ok {
		return f
	}
	return Field(name)
}

// Record is the typed trade-in record. Empty strings and nil pointers mean the
// field has not been collected. Extra holds fields this version does not know
// about so that newer callers can still round-trip them.
type Record struct {
	Brand       string `json:"brand,omitempty"`
	Model       string `json:"model,omitempty"`
	Storage     string `json:"storage,omitempty"`
	Condition   string `json:"condition,omitempty"`
	Accessories *bool  `json:"accessories,omitempty"`
	Photos      *bool  `json:"photos,omitempty"`
	Name        string `json:"name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	Payout      string `json:"payout,omitempty"`
	Recapped    bool   `json:"recap,omitempty"`
	Submitted   bool   `json:"submitted,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// Has reports whether f has been collected.
func (r *Record) Has(f Field) bool {
	switch f {
	case FieldBrand:
		return r.Brand != ""
	case FieldModel:
		return r.Model != ""
	case FieldStorage:
		return r.Storage != ""
	case FieldCondition:
		return r.Condition != ""
	case FieldAccessories:
		return r.Accessories != nil
	case FieldPhotos:
		return r.Photos != nil
	case FieldName:
		return r.Name != ""
	case FieldPhone:
		return r.Phone != ""
	case FieldEmail:
		return r.Email != ""
	case FieldPayout:
		return r.Payout != ""
	case FieldRecap:
		return r.Recapped
	case FieldSubmitted:
		return r.Submitted
	}
	_, ok := r.Extra[string(f)]
	return ok
}

// Get returns the collected value of f as a string or bool.
func (r *Record) Get(f Field) (any, bool) {
	if !r.Has(f) {
		return nil, false
	}
	switch f {
	case FieldBrand:
		return r.Brand, true
	case FieldModel:
		return r.Model, true
	case FieldStorage:
		return r.Storage, true
	case FieldCondition:
		return r.Condition, true
	case FieldAccessories:
		return *r.Accessories, true
	case FieldPhotos:
		return *r.Photos, true
	case FieldName:
		return r.Name, true
	case FieldPhone:
		return r.Phone, true
	case FieldEmail:
		return r.Email, true
	case FieldPayout:
		return r.Payout, true
	case FieldRecap:
		return r.Recapped, true
	case FieldSubmitted:
		return r.Submitted, true
	}
	return r.Extra[string(f)], true
}

// set writes v into f unconditionally. Boolean fields take a bool, every
// other field a non-empty string.
func (r *Record) set(f Field, v any) error {
	switch f {
	case FieldAccessories, FieldPhotos, FieldRecap, FieldSubmitted:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("checklist: field %q expects bool, got %T", f, v)
		}
		switch f {
		case FieldAccessories:
			r.Accessories = &b
		case FieldPhotos:
			r.Photos = &b
		case FieldRecap:
			r.Recapped = b
		case FieldSubmitted:
			r.Submitted = b
		}
		return nil
	}

	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("checklist: field %q expects string, got %T", f, v)
	}
	if s == "" {
		return fmt.Errorf("checklist: field %q: empty value", f)
	}
	switch f {
	case FieldBrand:
		r.Brand = s
	case FieldModel:
		r.Model = s
	case FieldStorage:
		r.Storage = s
	case FieldCondition:
		r.Condition = s
	case FieldName:
		r.Name = s
	case FieldPhone:
		r.Phone = s
	case FieldEmail:
		r.Email = s
	case FieldPayout:
		r.Payout = s
	default:
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[string(f)] = s
	}
	return nil
}

// clone returns a deep copy of r.
func (r Record) clone() Record {
	out := r
	if r.Accessories != nil {
		b := *r.Accessories
		out.Accessories = &b
	}
	if r.Photos != nil {
		b := *r.Photos
		out.Photos = &b
	}
	if r.Extra != nil {
		out.Extra = make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return out
}
