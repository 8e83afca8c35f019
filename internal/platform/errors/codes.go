// Package errors provides the structured error taxonomy shared by the
// transport, cache and mutation layers, plus user-safe message rendering.
package errors

// Kind classifies failures so call sites can react without inspecting
// server payloads.
type Kind string

const (
	KindUnknown         Kind = "unknown"
	KindNetwork         Kind = "network"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindGraphQL         Kind = "graphql"
	KindRollback        Kind = "rollback"
	KindInvalidInput    Kind = "invalid_input"
	KindNotFound        Kind = "not_found"
	KindUnavailable     Kind = "unavailable"
)

// Code is a machine-readable error code. GraphQL servers report these in
// errors[].extensions.code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Server-reported codes
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeBadUserInput    Code = "BAD_USER_INPUT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInternal        Code = "INTERNAL_SERVER_ERROR"

	// Client-side codes
	CodeNetwork         Code = "NETWORK_ERROR"
	CodeBadResponse     Code = "BAD_RESPONSE"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeRollback        Code = "OPTIMISTIC_ROLLBACK"
	CodeNotConfigured   Code = "NOT_CONFIGURED"
	CodeUpstreamFailure Code = "UPSTREAM_FAILURE"
)

// Kind maps a code to its failure class.
func (c Code) Kind() Kind {
	switch c {
	case CodeUnauthenticated:
		return KindUnauthenticated
	case CodeForbidden:
		return KindForbidden
	case CodeBadUserInput:
		return KindInvalidInput
	case CodeNotFound:
		return KindNotFound
	case CodeNetwork, CodeBadResponse:
		return KindNetwork
	case CodeRateLimited, CodeNotConfigured, CodeUpstreamFailure:
		return KindUnavailable
	case CodeRollback:
		return KindRollback
	case CodeInternal:
		return KindGraphQL
	case CodeUnknown, "":
		return KindUnknown
	default:
		// Unrecognized server codes are still application-level failures.
		return KindGraphQL
	}
}
