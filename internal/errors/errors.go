package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/victornm/olympia/internal/store"
)

const errorDomain = "olympia"

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeAborted            = Code(codes.Aborted)
	CodeUnavailable        = Code(codes.Unavailable)
	CodeInternal           = Code(codes.Internal)
	CodeUnauthenticated    = Code(codes.Unauthenticated)
	CodePermissionDenied   = Code(codes.PermissionDenied)
	CodeResourceExhausted  = Code(codes.ResourceExhausted)
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodeFailedPrecondition: http.StatusConflict,
	CodeAborted:            http.StatusConflict,
	CodeUnavailable:        http.StatusServiceUnavailable,
	CodeInternal:           http.StatusInternalServerError,
	CodeUnauthenticated:    http.StatusUnauthorized,
	CodePermissionDenied:   http.StatusForbidden,
	CodeResourceExhausted:  http.StatusTooManyRequests,
}

// Reason classifies domain failures independently of the transport code.
type Reason string

const (
	ReasonInvalidOutcome      Reason = "INVALID_OUTCOME"
	ReasonInvalidSessionState Reason = "INVALID_SESSION_STATE"
	ReasonDuplicateDecision   Reason = "DUPLICATE_DECISION"
	ReasonStorageUnavailable  Reason = "STORAGE_UNAVAILABLE"
	ReasonPartialResetFailure Reason = "PARTIAL_RESET_FAILURE"
)

type Error struct {
	Code    Code   `json:"code"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.Reason != "" {
		s += fmt.Sprintf(", reason: %s", e.Reason)
	}
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) GRPCStatus() *status.Status {
	st := status.New(codes.Code(e.Code), e.Message)
	if e.Reason == "" {
		return st
	}

	withInfo, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason: string(e.Reason),
		Domain: errorDomain,
	})
	if err != nil {
		return st
	}

	return withInfo
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// Is reports whether err carries the given reason anywhere in its chain.
func Is(err error, r Reason) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	return e.Reason == r
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

func InvalidOutcome(outcome string) *Error {
	return New(CodeInvalidArgument,
		WithReason(ReasonInvalidOutcome),
		WithMessagef("invalid outcome %q: want one of correct, wrong, timeout", outcome),
	)
}

func InvalidSessionState(format string, args ...any) *Error {
	return New(CodeFailedPrecondition,
		WithReason(ReasonInvalidSessionState),
		WithMessagef(format, args...),
	)
}

func DuplicateDecision(roundQuestionID, playerID string) *Error {
	return New(CodeAlreadyExists,
		WithReason(ReasonDuplicateDecision),
		WithMessagef("decision already recorded: round_question=%s player=%s", roundQuestionID, playerID),
	)
}

func StorageUnavailable(err error) *Error {
	return New(CodeUnavailable,
		WithReason(ReasonStorageUnavailable),
		WithMessagef("storage unavailable, retry the request"),
		WithCause(err),
	)
}

func PartialResetFailure(done, total int, err error) *Error {
	return New(CodeAborted,
		WithReason(ReasonPartialResetFailure),
		WithMessagef("package reset aborted: %d of %d round questions could be reset, nothing was changed", done, total),
		WithCause(err),
	)
}

// FromStorage maps storage failures onto typed errors. Typed errors pass through unchanged.
func FromStorage(err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return New(CodeNotFound, WithMessagef("not found"), WithCause(err))
	case errors.Is(err, store.ErrUnavailable):
		return StorageUnavailable(err)
	case errors.Is(err, store.ErrConflict):
		return InvalidSessionState("session was changed by another request, reload and retry")
	case errors.Is(err, store.ErrDuplicate):
		return New(CodeAlreadyExists, WithCause(err))
	default:
		return Internal(err)
	}
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithReason(r Reason) Option {
	return optionFunc(func(e *Error) {
		e.Reason = r
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
