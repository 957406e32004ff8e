package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/logx"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

const (
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeInternal     = "internal"
)

// Error is the JSON error envelope returned by every endpoint.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{Code: code, Message: sanitize(message, 512), Status: status}
}

func (e Error) WithDetails(details map[string]any) Error {
	if len(details) > 0 {
		e.Details = details
	}
	return e
}

func WriteError(ctx context.Context, w http.ResponseWriter, e Error) {
	payload := map[string]any{
		"error":   e.Code,
		"message": e.Message,
	}
	if id := middleware.GetReqID(ctx); id != "" {
		payload["request_id"] = id
	}
	if len(e.Details) > 0 {
		payload["details"] = e.Details
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(payload)
}

var statusByCode = map[string]int{
	orders.CodeValidation:         http.StatusBadRequest,
	orders.CodeInsufficientStock:  http.StatusConflict,
	orders.CodeInvalidTransition:  http.StatusConflict,
	orders.CodePaymentNotVerified: http.StatusConflict,
	orders.CodeExceedsRefundable:  http.StatusConflict,
	orders.CodeRefundNotAllowed:   http.StatusConflict,
	orders.CodeOrderNotFound:      http.StatusNotFound,
}

// FromDomain maps a service error to its envelope. Unclassified errors are
// logged and reported as internal without leaking their text.
func FromDomain(ctx context.Context, err error) Error {
	code := orders.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		logx.FromContext(ctx).Error("unhandled error", zap.Error(err))
		return NewError(CodeInternal, "internal error", http.StatusInternalServerError)
	}
	e := NewError(code, err.Error(), status)

	var (
		ve *orders.ValidationError
		se *orders.InsufficientStockError
		te *orders.InvalidTransitionError
		re *orders.ExceedsRefundableError
	)
	switch {
	case errors.As(err, &ve):
		e = e.WithDetails(map[string]any{"field": ve.Field})
	case errors.As(err, &se):
		e = e.WithDetails(map[string]any{
			"variant_ref": se.VariantRef,
			"requested":   se.Requested,
			"available":   se.Available,
		})
	case errors.As(err, &te):
		e = e.WithDetails(map[string]any{
			"current":   te.From,
			"requested": te.To,
			"allowed":   te.Allowed,
		})
	case errors.As(err, &re):
		e = e.WithDetails(map[string]any{
			"requested":  re.Requested,
			"refundable": re.Refundable,
		})
	}
	return e
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	WriteError(r.Context(), w, FromDomain(r.Context(), err))
}

func sanitize(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
