package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"student_records/backend/internal/shared"
)

var validate = validator.New()

// JSONResponse structure for successful responses
type JSONResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// JSONError structure for error responses
type JSONError struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// WriteJSON is a helper to write JSON responses
func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	var response interface{}

	// A map carrying its own "success" key is written as-is
	if responseMap, ok := payload.(map[string]interface{}); ok && responseMap["success"] != nil {
		response = payload
	} else if status >= 200 && status < 300 {
		response = JSONResponse{Success: true, Data: payload}
	} else {
		response = JSONError{Success: false, Message: "Unknown error"}
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		shared.Log.WithError(err).Error("Error writing JSON response")
	}
}

// WriteJSONError is a helper to write standardized error JSON responses
func WriteJSONError(w http.ResponseWriter, status int, message string) {
	writeError(w, status, JSONError{Success: false, Message: message})
}

// WriteValidationError reports request validation failures field by field
func WriteValidationError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, JSONError{
		Success: false,
		Message: "Validation failed",
		Errors:  FormatValidationErrors(err),
	})
}

func writeError(w http.ResponseWriter, status int, body JSONError) {
	entry := shared.Log.WithField("status", status)
	if status >= 500 {
		entry.Error(body.Message)
	} else {
		entry.Debug(body.Message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		shared.Log.WithError(err).Error("Error writing JSON error response")
	}
}

// HandleGRPCError translates gRPC status errors to appropriate HTTP responses.
func HandleGRPCError(w http.ResponseWriter, err error) {
	st, ok := status.FromError(err)
	if !ok {
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	switch st.Code() {
	case codes.InvalidArgument:
		WriteJSONError(w, http.StatusBadRequest, st.Message())
	case codes.Unauthenticated:
		WriteJSONError(w, http.StatusUnauthorized, st.Message())
	case codes.PermissionDenied:
		WriteJSONError(w, http.StatusForbidden, st.Message())
	case codes.NotFound:
		WriteJSONError(w, http.StatusNotFound, st.Message())
	case codes.AlreadyExists, codes.FailedPrecondition:
		WriteJSONError(w, http.StatusConflict, st.Message())
	case codes.Unavailable:
		WriteJSONError(w, http.StatusServiceUnavailable, "Service Unavailable: the database is unreachable.")
	case codes.DeadlineExceeded:
		WriteJSONError(w, http.StatusGatewayTimeout, "Request Timeout: the database took too long to respond.")
	default:
		WriteJSONError(w, http.StatusInternalServerError, st.Message())
	}
}

// ExtractToken extracts the token from the Authorization header (Bearer <token>)
func ExtractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", errors.New("invalid authorization header format")
	}

	return parts[1], nil
}

// DecodeAndValidate reads a JSON body into dst and runs its validate tags.
// It writes the error response itself and reports whether the handler may continue.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			WriteJSONError(w, http.StatusBadRequest, "Request body is empty")
			return false
		}
		WriteJSONError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		WriteValidationError(w, err)
		return false
	}
	return true
}

// FormatValidationErrors formats validation errors from validator/v10
func FormatValidationErrors(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}

	out := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		element := fmt.Sprintf("Field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			element = fmt.Sprintf("%s (value: %s)", element, fe.Param())
		}
		out = append(out, element)
	}
	return out
}

// QueryInt parses an integer query parameter, returning def when absent or malformed
func QueryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
