package httppresentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Zhima-Mochi/minishop-orders/internal/apperr"
	appOrder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
	roleAdmin      = "admin"

	maxBodyBytes = 1 << 20
)

// requesterFrom reads the caller identity set by the trusted upstream gateway.
func requesterFrom(r *http.Request) appOrder.Requester {
	return appOrder.Requester{
		ID:    strings.TrimSpace(r.Header.Get(headerUserID)),
		Admin: strings.EqualFold(strings.TrimSpace(r.Header.Get(headerUserRole)), roleAdmin),
	}
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Validation(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Kind    string `json:"kind"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// writeError renders err as {"error":{"kind","status","message"}}; status is the canonical gRPC code name.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logctx.FromOr(r.Context(), h.log).Error("http_request_failed",
			observability.F("route", routeFromContext(r.Context())),
			observability.F("error", err),
		)
	}
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Kind:    string(apperr.KindOf(err)),
		Status:  apperr.Code(err).String(),
		Message: apperr.Message(err),
	}})
}
