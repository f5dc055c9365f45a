package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/MrWong99/tradein/internal/autosave"
	"github.com/MrWong99/tradein/internal/checklist"
	"github.com/MrWong99/tradein/internal/quote"
)

// validate is the shared validator for request bodies. Field names in errors
// use the JSON tag.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage renders validator errors as one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace is "quoteRequest.trade.model"; drop the type name.
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(msgs, "; ")
}

type turnRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
	User      string `json:"user" validate:"required,max=4000"`
	Assistant string `json:"assistant" validate:"max=4000"`
}

type turnResponse struct {
	autosave.Outcome
	Checklist checklist.Snapshot `json:"checklist"`
}

type sideRequest struct {
	Model     string `json:"model" validate:"required,max=200"`
	Variant   string `json:"variant" validate:"max=200"`
	Condition string `json:"condition" validate:"omitempty,oneof=brand_new mint good fair faulty"`
}

type quoteRequest struct {
	Trade    sideRequest `json:"trade"`
	Target   sideRequest `json:"target"`
	Discount float64     `json:"discount" validate:"gte=0"`
}

func (q quoteRequest) toRequest() quote.Request {
	return quote.Request{
		Trade:    quote.Side{Model: q.Trade.Model, Variant: q.Trade.Variant, Condition: q.Trade.Condition},
		Target:   quote.Side{Model: q.Target.Model, Variant: q.Target.Variant},
		Discount: q.Discount,
	}
}

type speechRequest struct {
	Text string `json:"text" validate:"required,max=10000"`
}

type speechResponse struct {
	Text string `json:"text"`
}
