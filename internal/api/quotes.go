package api

import (
	"errors"
	"net/http"

	"github.com/MrWong99/tradein/internal/observe"
	"github.com/MrWong99/tradein/internal/pricegrid"
	"github.com/MrWong99/tradein/internal/quote"
	"github.com/MrWong99/tradein/internal/speech"
)

type quoteResponse struct {
	quote.Outcome
	Spoken string `json:"spoken"`
}

type priceResponse struct {
	quote.PriceOutcome
	Spoken string `json:"spoken"`
}

type searchResponse struct {
	Results []pricegrid.Entry `json:"results"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := s.calc.Evaluate(req.toRequest())
	if err != nil {
		s.lookupFailed(w, r, err)
		return
	}
	res := quoteResponse{Outcome: out}
	if out.Clarification != nil {
		s.metrics.RecordQuote(r.Context(), "clarify")
		res.Spoken = out.Clarification.Question
	} else {
		s.metrics.RecordQuote(r.Context(), "ok")
		res.Spoken = speech.NormalizeCurrency(out.Quote.Summary)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if text := q.Get("q"); text != "" {
		results := s.calc.Grid().Search(text)
		if results == nil {
			results = []pricegrid.Entry{}
		}
		writeJSON(w, http.StatusOK, searchResponse{Results: results})
		return
	}
	if q.Get("model") == "" {
		writeError(w, http.StatusBadRequest, "model or q is required")
		return
	}

	out, err := s.calc.LookupPrice(pricegrid.Query{
		Model:     q.Get("model"),
		Variant:   q.Get("variant"),
		Condition: q.Get("condition"),
	})
	if err != nil {
		s.lookupFailed(w, r, err)
		return
	}
	res := priceResponse{PriceOutcome: out}
	if out.Clarification != nil {
		s.metrics.RecordQuote(r.Context(), "clarify")
		res.Spoken = out.Clarification.Question
	} else {
		s.metrics.RecordQuote(r.Context(), "ok")
		res.Spoken = speech.NormalizeCurrency(out.Price.Summary)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) lookupFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, pricegrid.ErrNoRows) {
		s.metrics.RecordQuote(r.Context(), "not_found")
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.metrics.RecordQuote(r.Context(), "error")
	observe.Logger(r.Context()).Error("api: quote failed", "err", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, speechResponse{Text: speech.NormalizeCurrency(req.Text)})
}
