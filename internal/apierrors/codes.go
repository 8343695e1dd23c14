// Package apierrors provides structured API error codes and responses.
// All codes are namespaced (e.g., "core:unauthorized", "stats:export_failed").
package apierrors

import "net/http"

// Core error codes - registered automatically at init
const (
	// Authentication & Authorization
	CodeUnauthorized = "core:unauthorized"
	CodeForbidden    = "core:forbidden"
	CodeInvalidToken = "core:invalid_token"
	CodeTokenExpired = "core:token_expired"
	CodeTokenRevoked = "core:token_revoked"

	// Request errors
	CodeInvalidRequest    = "core:invalid_request"
	CodeValidationFailed  = "core:validation_failed"
	CodeInvalidScope      = "core:invalid_scope"
	CodeInvalidExpiration = "core:invalid_expiration"
	CodeInvalidID         = "core:invalid_id"

	// Resource errors
	CodeNotFound      = "core:not_found"
	CodeTokenNotFound = "core:token_not_found"
	CodeConflict      = "core:conflict"
	CodeDuplicate     = "core:duplicate"

	// Rate limiting
	CodeRateLimited = "core:rate_limited"

	// Server errors
	CodeInternalError      = "core:internal_error"
	CodeServiceUnavailable = "core:service_unavailable"
	CodeShutdownInProgress = "core:shutdown_in_progress"

	// Infrastructure errors (spec §7: Database/Storage/Cache/Network)
	CodeDatabaseError = "core:database_error"
	CodeStorageError  = "core:storage_error"
	CodeCacheError    = "core:cache_error"
	CodeNetworkError  = "core:network_error"

	// Plugin errors
	CodePlugin           = "core:plugin_error"
	CodePluginNotFound   = "core:plugin_not_found"
	CodePluginDependency = "core:plugin_dependency"

	// Job queue errors
	CodeJob        = "core:job_error"
	CodeJobTimeout = "core:job_timeout"

	// Tenant errors
	CodeTenantNotFound  = "core:tenant_not_found"
	CodeTenantSuspended = "core:tenant_suspended"

	// Hook registry errors
	CodeHookError = "core:hook_error"
)

// coreErrors defines all core error codes with their default messages and HTTP status
var coreErrors = []ErrorCode{
	// Authentication & Authorization
	{Code: CodeUnauthorized, Message: "Authentication required", HTTPStatus: http.StatusUnauthorized},
	{Code: CodeForbidden, Message: "Permission denied", HTTPStatus: http.StatusForbidden},
	{Code: CodeInvalidToken, Message: "Invalid or malformed token", HTTPStatus: http.StatusUnauthorized},
	{Code: CodeTokenExpired, Message: "Token has expired", HTTPStatus: http.StatusUnauthorized},
	{Code: CodeTokenRevoked, Message: "Token has been revoked", HTTPStatus: http.StatusUnauthorized},

	// Request errors
	{Code: CodeInvalidRequest, Message: "Invalid request body", HTTPStatus: http.StatusBadRequest},
	{Code: CodeValidationFailed, Message: "Request validation failed", HTTPStatus: http.StatusUnprocessableEntity},
	{Code: CodeInvalidScope, Message: "Invalid scope value", HTTPStatus: http.StatusBadRequest},
	{Code: CodeInvalidExpiration, Message: "Invalid expiration format", HTTPStatus: http.StatusBadRequest},
	{Code: CodeInvalidID, Message: "Invalid ID format", HTTPStatus: http.StatusBadRequest},

	// Resource errors
	{Code: CodeNotFound, Message: "Resource not found", HTTPStatus: http.StatusNotFound},
	{Code: CodeTokenNotFound, Message: "Token not found", HTTPStatus: http.StatusNotFound},
	{Code: CodeConflict, Message: "Resource conflict", HTTPStatus: http.StatusConflict},
	{Code: CodeDuplicate, Message: "Resource already exists", HTTPStatus: http.StatusConflict},

	// Rate limiting
	{Code: CodeRateLimited, Message: "Too many requests", HTTPStatus: http.StatusTooManyRequests},

	// Server errors
	{Code: CodeInternalError, Message: "Internal server error", HTTPStatus: http.StatusInternalServerError},
	{Code: CodeServiceUnavailable, Message: "Service temporarily unavailable", HTTPStatus: http.StatusServiceUnavailable},
	{Code: CodeShutdownInProgress, Message: "Server is shutting down", HTTPStatus: http.StatusServiceUnavailable},

	// Infrastructure errors - Database/Storage/Cache messages never reach the
	// client verbatim (response.go's silentCodes replaces them); Network is
	// not in that set.
	{Code: CodeDatabaseError, Message: "Internal server error", HTTPStatus: http.StatusInternalServerError},
	{Code: CodeStorageError, Message: "Internal server error", HTTPStatus: http.StatusInternalServerError},
	{Code: CodeCacheError, Message: "Internal server error", HTTPStatus: http.StatusInternalServerError},
	{Code: CodeNetworkError, Message: "Internal server error", HTTPStatus: http.StatusInternalServerError},

	// Plugin errors
	{Code: CodePlugin, Message: "Plugin error", HTTPStatus: http.StatusInternalServerError},
	{Code: CodePluginNotFound, Message: "Plugin not found", HTTPStatus: http.StatusNotFound},
	{Code: CodePluginDependency, Message: "Plugin dependency unmet", HTTPStatus: http.StatusConflict},

	// Job queue errors
	{Code: CodeJob, Message: "Job failed", HTTPStatus: http.StatusInternalServerError},
	{Code: CodeJobTimeout, Message: "Job timed out", HTTPStatus: http.StatusInternalServerError},

	// Tenant errors
	{Code: CodeTenantNotFound, Message: "Tenant not found", HTTPStatus: http.StatusNotFound},
	{Code: CodeTenantSuspended, Message: "Tenant is suspended", HTTPStatus: http.StatusForbidden},

	// Hook registry errors
	{Code: CodeHookError, Message: "Hook execution failed", HTTPStatus: http.StatusInternalServerError},
}

func init() {
	// Register all core error codes
	for _, e := range coreErrors {
		Registry.Register(e)
	}
}
