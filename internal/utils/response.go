package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"ms-settlement/internal/domain"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now().UTC(),
	}
}

// Validate checks request structs against their validate tags.
var Validate = validator.New()

func WriteJSON(w http.ResponseWriter, status int, body APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// DecodeJSON reads a JSON body into dst without validating it.
func DecodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.Invalid("invalid request payload: %v", err)
	}
	return nil
}

// ValidateStruct runs the validate tags on v and reports the first failure.
func ValidateStruct(v any) error {
	if err := Validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return domain.Invalid("field %s failed %s", verrs[0].Field(), verrs[0].Tag())
		}
		return domain.Invalid("%v", err)
	}
	return nil
}

// DecodeAndValidate reads a JSON body into dst and validates it.
func DecodeAndValidate(r *http.Request, dst any) error {
	if err := DecodeJSON(r, dst); err != nil {
		return err
	}
	return ValidateStruct(dst)
}

// StatusFor maps a domain error kind to its HTTP status.
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidationFailed:
		return http.StatusBadRequest
	case domain.KindCapacityExhausted, domain.KindConflictingState:
		return http.StatusConflict
	case domain.KindTransientFailure:
		if errors.Is(err, domain.ErrPaymentDeclined) {
			return http.StatusPaymentRequired
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err in the response envelope. Unclassified errors are
// not echoed to the client.
func WriteError(w http.ResponseWriter, message string, err error) {
	status := StatusFor(err)
	resp := ErrorResponse(message, err.Error())
	resp.Code = domain.CodeOf(err)
	if status == http.StatusInternalServerError {
		resp.Error = "internal error"
	}
	WriteJSON(w, status, resp)
}

// WriteErrorWithData is WriteError with a payload, used when a failed
// operation still produced a record the client needs.
func WriteErrorWithData(w http.ResponseWriter, message string, err error, data interface{}) {
	resp := ErrorResponse(message, err.Error())
	resp.Code = domain.CodeOf(err)
	resp.Data = data
	WriteJSON(w, StatusFor(err), resp)
}
