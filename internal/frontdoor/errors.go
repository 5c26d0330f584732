package frontdoor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tjfontaine/promptlink-gateway/internal/api/openrouter"
	"github.com/tjfontaine/promptlink-gateway/internal/checkout"
	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/ledger"
	"github.com/tjfontaine/promptlink-gateway/internal/registry"
	"github.com/tjfontaine/promptlink-gateway/internal/server"
)

type errorEnvelope struct {
	Error *domain.APIError `json:"error"`
}

// toAPIError maps errors from every layer onto the public error taxonomy.
func toAPIError(err error) *domain.APIError {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var notFound *registry.NotFoundError
	if errors.As(err, &notFound) {
		return domain.ErrInvalidInput("unknown agent_id; valid: "+strings.Join(notFound.Valid, ", ")).
			WithCode(domain.ErrorCodeAgentNotFound).
			WithParam("agent_id")
	}

	var upErr *openrouter.UpstreamError
	if errors.As(err, &upErr) {
		e := domain.ErrUpstream(upErr.Error())
		switch upErr.Kind {
		case openrouter.KindRateLimited:
			e.WithCode(domain.ErrorCodeUpstreamRateLimited)
		case openrouter.KindTimeout:
			e.WithCode(domain.ErrorCodeUpstreamTimeout)
		case openrouter.KindBadStatus:
			e.WithCode(domain.ErrorCodeUpstreamBadStatus)
		case openrouter.KindMalformedResponse:
			e.WithCode(domain.ErrorCodeUpstreamMalformed)
		}
		return e
	}

	switch {
	case errors.Is(err, ledger.ErrInsufficient):
		return domain.ErrInsufficientCredits("insufficient credits for this request")
	case errors.Is(err, ledger.ErrUnknownPlan):
		return domain.ErrInvalidInput(err.Error()).WithCode(domain.ErrorCodePlanNotFound).WithParam("plan_id")
	case errors.Is(err, ledger.ErrInvalidAmount):
		return domain.ErrInvalidInput(err.Error())
	case errors.Is(err, checkout.ErrInvalidSignature):
		return domain.ErrInvalidInput("invalid webhook signature")
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrUpstream("request timed out").WithCode(domain.ErrorCodeUpstreamTimeout)
	}

	return domain.ErrServer("internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)
	apiErr := toAPIError(err)
	writeJSON(w, apiErr.HTTPStatusCode(), errorEnvelope{Error: apiErr})
}
