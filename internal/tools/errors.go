package tools

import "errors"

// Application error types carried on activity and workflow failures.
const (
	ErrTypeUnknownTool         = "UnknownTool"
	ErrTypeTimeout             = "Timeout"
	ErrTypeProviderUnavailable = "ProviderUnavailable"
	ErrTypeInvalidParameters   = "InvalidParameters"
	ErrTypeUnsupported         = "Unsupported"
	ErrTypePolicyDenied        = "PolicyDenied"
)

// NonRetryableErrorTypes never succeed on a retry.
var NonRetryableErrorTypes = []string{
	ErrTypeUnknownTool,
	ErrTypeInvalidParameters,
	ErrTypeUnsupported,
	ErrTypePolicyDenied,
}

var (
	ErrUnknownTool       = errors.New("unknown tool")
	ErrInvalidParameters = errors.New("invalid parameters")
)
