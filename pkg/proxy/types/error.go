package types

// ErrorResponse represents an OpenAI-compatible error response.
// This is returned for all error conditions on the OpenAI dialect to ensure
// compatibility with OpenAI SDKs and tools. The Anthropic dialect uses
// AnthropicErrorResponse instead.
type ErrorResponse struct {
	// Error contains the error details.
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Message is a human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error.
	// Possible values: "invalid_request_error", "authentication_error",
	// "rate_limit_exceeded", "server_error", "bad_gateway",
	// "service_unavailable", "gateway_timeout".
	Type string `json:"type"`

	// Param is the name of the parameter that caused the error (if applicable).
	Param string `json:"param,omitempty"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`
}

// Error type constants matching the OpenAI API specification.
const (
	// ErrorTypeInvalidRequest indicates a client-side error (400).
	ErrorTypeInvalidRequest = "invalid_request_error"

	// ErrorTypeAuthentication indicates an authentication failure (401).
	ErrorTypeAuthentication = "authentication_error"

	// ErrorTypeRateLimitExceeded indicates too many requests (429).
	ErrorTypeRateLimitExceeded = "rate_limit_exceeded"

	// ErrorTypeServerError indicates an internal server error (500).
	ErrorTypeServerError = "server_error"

	// ErrorTypeBadGateway indicates an upstream error (502).
	ErrorTypeBadGateway = "bad_gateway"

	// ErrorTypeServiceUnavailable indicates temporary unavailability (503),
	// e.g. no active upstream accounts.
	ErrorTypeServiceUnavailable = "service_unavailable"

	// ErrorTypeGatewayTimeout indicates an upstream timeout (504).
	ErrorTypeGatewayTimeout = "gateway_timeout"
)

// Anthropic-dialect error type constants.
const (
	AnthropicErrInvalidRequest = "invalid_request_error"
	AnthropicErrAuthentication = "authentication_error"
	AnthropicErrRateLimit      = "rate_limit_error"
	AnthropicErrAPI            = "api_error"
	AnthropicErrOverloaded     = "overloaded_error"
)

// NewErrorResponse builds an OpenAI-dialect error envelope.
func NewErrorResponse(errType, message string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errType,
		},
	}
}

// NewAnthropicError builds an Anthropic-dialect error envelope.
func NewAnthropicError(errType, message string) *AnthropicErrorResponse {
	return &AnthropicErrorResponse{
		Type: "error",
		Error: AnthropicErrorDetail{
			Type:    errType,
			Message: message,
		},
	}
}
