package lead

import (
	"context"
	"maps"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/MrWong99/tradein/internal/checklist"
)

// DefaultRegion is the phone-number region used when none is configured.
const DefaultRegion = "SG"

// BuildPayload composes the partial-update body from the collected record.
// The preferred payout is only sent for cash trade-ins.
func BuildPayload(sessionID string, rec checklist.Record, tradeUp bool, region string) Payload {
	p := Payload{
		SessionID:    sessionID,
		Brand:        rec.Brand,
		Model:        rec.Model,
		Storage:      rec.Storage,
		Condition:    rec.Condition,
		ContactName:  rec.Name,
		ContactPhone: rec.Phone,
		ContactEmail: rec.Email,
		Notes:        Notes(rec),
	}
	if rec.Phone != "" {
		if e164, ok := NormalizeE164(rec.Phone, region); ok {
			p.ContactPhoneE164 = e164
		}
	}
	if !tradeUp {
		p.PreferredPayout = rec.Payout
	}
	if len(rec.Extra) > 0 {
		p.Extra = maps.Clone(rec.Extra)
	}
	return p
}

// Notes renders the accessories and photos flags as the free-text note the
// store displays.
func Notes(rec checklist.Record) string {
	var notes string
	if rec.Accessories != nil {
		if *rec.Accessories {
			notes = "Has box and accessories"
		} else {
			notes = "No box/accessories"
		}
	}
	if rec.Photos != nil {
		if *rec.Photos {
			notes += " | Photos: Provided"
		} else {
			notes += " | Photos: Not provided"
		}
	}
	return strings.TrimSpace(notes)
}

// NormalizeE164 formats a collected phone number as E.164 for region. Numbers
// that already carry their country code are accepted too.
func NormalizeE164(digits, region string) (string, bool) {
	if region == "" {
		region = DefaultRegion
	}
	for _, candidate := range []string{digits, "+" + digits} {
		num, err := phonenumbers.Parse(candidate, region)
		if err != nil || !phonenumbers.IsValidNumber(num) {
			continue
		}
		return phonenumbers.Format(num, phonenumbers.E164), true
	}
	return "", false
}

// ValidateForSubmission enforces the submission boundary: brand and model must
// be present whatever the caller checked before.
func ValidateForSubmission(rec checklist.Record) error {
	var missing []string
	if rec.Brand == "" {
		missing = append(missing, string(checklist.FieldBrand))
	}
	if rec.Model == "" {
		missing = append(missing, string(checklist.FieldModel))
	}
	if len(missing) > 0 {
		return &PreconditionError{Missing: missing}
	}
	return nil
}

// SubmitValidated checks rec against the submission boundary and, when it
// passes, forwards req to store.
func SubmitValidated(ctx context.Context, store Store, rec checklist.Record, req SubmitRequest) (Response, error) {
	if err := ValidateForSubmission(rec); err != nil {
		return Response{}, err
	}
	return store.Submit(ctx, req)
}
