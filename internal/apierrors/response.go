package apierrors

import (
	"github.com/gin-gonic/gin"
)

// APIError is the structured body spec §7 requires: {code, message,
// details?, request_id?}.
type APIError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// silentCodes never expose their registered message to the client
// verbatim; they log internally and return the generic phrase instead,
// per spec §7's propagation policy for Internal/Database/Storage/Cache.
var silentCodes = map[string]bool{
	CodeInternalError: true,
	CodeDatabaseError: true,
	CodeStorageError:  true,
	CodeCacheError:    true,
}

func requestID(c *gin.Context) string {
	if id, ok := c.Get("request_id"); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

func clientMessage(code, message string) string {
	if silentCodes[code] {
		return "Internal server error"
	}
	return message
}

// Error sends an error response using a registered error code.
// It looks up the code in the registry for HTTP status and default message.
func Error(c *gin.Context, code string) {
	status := Registry.HTTPStatus(code)
	message := clientMessage(code, Registry.Message(code))
	c.JSON(status, gin.H{"error": APIError{Code: code, Message: message, RequestID: requestID(c)}})
}

// ErrorWithMessage sends an error response with a custom message.
// Useful when the message needs dynamic content (e.g., validation details).
func ErrorWithMessage(c *gin.Context, code, message string) {
	status := Registry.HTTPStatus(code)
	c.JSON(status, gin.H{"error": APIError{Code: code, Message: clientMessage(code, message), RequestID: requestID(c)}})
}

// ErrorWithDetails sends an error response carrying per-field detail, e.g.
// Validation's field list with per-field codes.
func ErrorWithDetails(c *gin.Context, code, message string, details map[string]any) {
	status := Registry.HTTPStatus(code)
	c.JSON(status, gin.H{"error": APIError{Code: code, Message: clientMessage(code, message), Details: details, RequestID: requestID(c)}})
}

// ErrorWithStatus sends an error response with a custom HTTP status.
// Use when the registered status isn't appropriate for the context.
func ErrorWithStatus(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": APIError{Code: code, Message: clientMessage(code, message), RequestID: requestID(c)}})
}

// New creates an APIError without sending a response.
// Useful for building error responses manually.
func New(code string) APIError {
	return APIError{
		Code:    code,
		Message: clientMessage(code, Registry.Message(code)),
	}
}

// NewWithMessage creates an APIError with a custom message.
func NewWithMessage(code, message string) APIError {
	return APIError{
		Code:    code,
		Message: clientMessage(code, message),
	}
}
