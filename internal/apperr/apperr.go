// Package apperr is the error taxonomy shared by the guard, the services
// and the HTTP layer. Every error a caller can see carries a Kind (which
// decides the HTTP status) and a stable machine Code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindInvalidInput
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Status maps the kind to its HTTP status class.
func (k Kind) Status() int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Stable codes. Clients switch on these, so never rename one.
const (
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeNotChannelMember   = "NOT_CHANNEL_MEMBER"
	CodeNotMessageAuthor   = "NOT_MESSAGE_AUTHOR"
	CodeNotReactionOwner   = "NOT_REACTION_OWNER"
	CodeInsufficientRole   = "INSUFFICIENT_ROLE"
	CodeDMMembershipFixed  = "DM_MEMBERSHIP_FIXED"
	CodeWorkspaceNotFound  = "WORKSPACE_NOT_FOUND"
	CodeChannelNotFound    = "CHANNEL_NOT_FOUND"
	CodeMessageNotFound    = "MESSAGE_NOT_FOUND"
	CodeReactionNotFound   = "REACTION_NOT_FOUND"
	CodeMemberNotFound     = "MEMBER_NOT_FOUND"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeInvalidID          = "INVALID_ID"
	CodeInvalidBody        = "INVALID_BODY"
	CodeEmptyContent       = "EMPTY_CONTENT"
	CodeContentTooLong     = "CONTENT_TOO_LONG"
	CodeInvalidRole        = "INVALID_ROLE"
	CodeInvalidThread      = "INVALID_THREAD"
	CodeInvalidMessageType = "INVALID_MESSAGE_TYPE"
	CodeInvalidAttachments = "INVALID_ATTACHMENTS"
	CodeInvalidChannelType = "INVALID_CHANNEL_TYPE"
	CodeInvalidName        = "INVALID_NAME"
	CodeInvalidEmoji       = "INVALID_EMOJI"
	CodeInvalidCursor      = "INVALID_CURSOR"
	CodeInvalidLimit       = "INVALID_LIMIT"
	CodeSelfDM             = "SELF_DM"
	CodeNoTargets          = "NO_TARGETS"
	CodeTooManyTargets     = "TOO_MANY_TARGETS"
	CodeNotWorkspaceMember = "NOT_WORKSPACE_MEMBER"
	CodeOwnerImmutable     = "OWNER_IMMUTABLE"
	CodeOwnerCannotLeave   = "OWNER_CANNOT_LEAVE"
	CodeLastAdmin          = "LAST_ADMIN"
	CodeAlreadyMember      = "ALREADY_MEMBER"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL"
)

// Error is the only error type that crosses the service boundary.
// Err, when set, is the underlying cause; it is never rendered to clients.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Unauthenticated(message string) *Error {
	return New(KindUnauthenticated, CodeUnauthenticated, message)
}

func Forbidden(code, message string) *Error { return New(KindForbidden, code, message) }

func NotFound(code, message string) *Error { return New(KindNotFound, code, message) }

func InvalidInput(code, message string) *Error { return New(KindInvalidInput, code, message) }

func Conflict(code, message string) *Error { return New(KindConflict, code, message) }

// Internal hides err behind a generic message.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns KindInternal for anything that is not an *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of err, or CodeInternal.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}
