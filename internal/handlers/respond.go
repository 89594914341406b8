package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/storefrontapp/storefront/internal/logging"
	"github.com/storefrontapp/storefront/internal/services"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps service errors onto status codes. Unknown errors are
// logged and reported as 500 without detail.
func (h *Handlers) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, services.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, "order is already paid")
	case errors.Is(err, services.ErrPaymentIncomplete):
		writeError(w, http.StatusConflict, "payment has not completed")
	case errors.Is(err, services.ErrDuplicateReceipt):
		writeError(w, http.StatusConflict, "receipt was already used for a different payment attempt")
	case errors.Is(err, services.ErrGatewayUnavailable):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "payment gateway unavailable, retry later")
	case errors.Is(err, services.ErrGatewayRejected):
		writeError(w, http.StatusBadGateway, "payment gateway rejected the request")
	default:
		logging.FromContext(ctx, nil).Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func validationFromStruct(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &services.ValidationError{Fields: map[string]string{"body": err.Error()}}
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[jsonFieldPath(fe.Namespace())] = "failed " + fe.Tag() + " check"
	}
	return &services.ValidationError{Fields: fields}
}

// jsonFieldPath drops the struct name from a validator namespace such as
// "placeOrderRequest.shipping_address.postal_code".
func jsonFieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

// jsonTagName makes validator report fields by their JSON names.
func jsonTagName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}
