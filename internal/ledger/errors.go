package ledger

import (
	"errors"
	"fmt"
)

// Kind is the coarse error category a caller uses to decide whether to
// retry with corrected input, abandon, or escalate.
type Kind string

const (
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindInvalidState      Kind = "INVALID_STATE"
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidInput      Kind = "INVALID_INPUT"
	KindAlreadyExists     Kind = "ALREADY_EXISTS"
	KindReplayDetected    Kind = "REPLAY_DETECTED"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
)

// Code identifies the specific failure.
type Code string

const (
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeInvalidSignature      Code = "INVALID_SIGNATURE"
	CodePaused                Code = "PAUSED"
	CodeNotPaused             Code = "NOT_PAUSED"
	CodeLastAdmin             Code = "LAST_ADMIN"
	CodeReentrantCall         Code = "REENTRANT_CALL"
	CodeAlreadyClaimed        Code = "ALREADY_CLAIMED"
	CodeAlreadyExecuted       Code = "ALREADY_EXECUTED"
	CodeAlreadyVerified       Code = "ALREADY_VERIFIED"
	CodePayrollCancelled      Code = "PAYROLL_CANCELLED"
	CodePayrollNotDue         Code = "PAYROLL_NOT_DUE"
	CodeNotRegistered         Code = "NOT_REGISTERED"
	CodeBatchNotFound         Code = "BATCH_NOT_FOUND"
	CodePaymentNotFound       Code = "PAYMENT_NOT_FOUND"
	CodePayrollNotFound       Code = "PAYROLL_NOT_FOUND"
	CodeUnknownMethod         Code = "UNKNOWN_METHOD"
	CodeZeroAddress           Code = "ZERO_ADDRESS"
	CodeZeroRecipient         Code = "ZERO_RECIPIENT"
	CodeZeroEntity            Code = "ZERO_ENTITY"
	CodeZeroAmount            Code = "ZERO_AMOUNT"
	CodeZeroDeposit           Code = "ZERO_DEPOSIT"
	CodeZeroWithdrawal        Code = "ZERO_WITHDRAWAL"
	CodeZeroHash              Code = "ZERO_HASH"
	CodeZeroEphemeralKey      Code = "ZERO_EPHEMERAL_KEY"
	CodeEmptyRecipients       Code = "EMPTY_RECIPIENTS"
	CodeEmptyCid              Code = "EMPTY_CID"
	CodeLengthMismatch        Code = "LENGTH_MISMATCH"
	CodeInvalidScheduleTime   Code = "INVALID_SCHEDULE_TIME"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeOverflow              Code = "OVERFLOW"
	CodeAlreadyRegistered     Code = "ALREADY_REGISTERED"
	CodeNonceAlreadyUsed      Code = "NONCE_ALREADY_USED"
	CodeInsufficientBalance   Code = "INSUFFICIENT_BALANCE"
	CodeInsufficientAllowance Code = "INSUFFICIENT_ALLOWANCE"
	CodeInsufficientDeposit   Code = "INSUFFICIENT_DEPOSIT"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
)

var codeKinds = map[Code]Kind{
	CodeUnauthorized:          KindUnauthorized,
	CodeInvalidSignature:      KindUnauthorized,
	CodePaused:                KindInvalidState,
	CodeNotPaused:             KindInvalidState,
	CodeLastAdmin:             KindInvalidState,
	CodeReentrantCall:         KindInvalidState,
	CodeAlreadyClaimed:        KindInvalidState,
	CodeAlreadyExecuted:       KindInvalidState,
	CodeAlreadyVerified:       KindInvalidState,
	CodePayrollCancelled:      KindInvalidState,
	CodePayrollNotDue:         KindInvalidState,
	CodeNotRegistered:         KindNotFound,
	CodeBatchNotFound:         KindNotFound,
	CodePaymentNotFound:       KindNotFound,
	CodePayrollNotFound:       KindNotFound,
	CodeUnknownMethod:         KindNotFound,
	CodeZeroAddress:           KindInvalidInput,
	CodeZeroRecipient:         KindInvalidInput,
	CodeZeroEntity:            KindInvalidInput,
	CodeZeroAmount:            KindInvalidInput,
	CodeZeroDeposit:           KindInvalidInput,
	CodeZeroWithdrawal:        KindInvalidInput,
	CodeZeroHash:              KindInvalidInput,
	CodeZeroEphemeralKey:      KindInvalidInput,
	CodeEmptyRecipients:       KindInvalidInput,
	CodeEmptyCid:              KindInvalidInput,
	CodeLengthMismatch:        KindInvalidInput,
	CodeInvalidScheduleTime:   KindInvalidInput,
	CodeInvalidArgument:       KindInvalidInput,
	CodeOverflow:              KindInvalidInput,
	CodeAlreadyRegistered:     KindAlreadyExists,
	CodeNonceAlreadyUsed:      KindReplayDetected,
	CodeInsufficientBalance:   KindInsufficientFunds,
	CodeInsufficientAllowance: KindInsufficientFunds,
	CodeInsufficientDeposit:   KindInsufficientFunds,
	CodeInsufficientLiquidity: KindInsufficientFunds,
}

// KindFor returns the category of a code.
func KindFor(code Code) Kind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	return KindInvalidState
}

// Error is a ledger rejection. Every rejection aborts the whole call.
//
// Field and ID carry the failing argument name and the id or address the
// failure is about, so a caller can correct the input and retry.
type Error struct {
	Kind      Kind
	Code      Code
	Message   string
	Component string
	Field     string
	ID        string
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Component != "" {
		msg = e.Component + ": " + msg
	}
	switch {
	case e.Field != "" && e.ID != "":
		return fmt.Sprintf("%s (field=%s, id=%s)", msg, e.Field, e.ID)
	case e.Field != "":
		return fmt.Sprintf("%s (field=%s)", msg, e.Field)
	case e.ID != "":
		return fmt.Sprintf("%s (id=%s)", msg, e.ID)
	}
	return msg
}

// Is matches any *Error with the same code, so sentinels work with
// errors.Is regardless of context fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Errorf creates an Error for code.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Kind: KindFor(code), Code: code, Message: fmt.Sprintf(format, args...)}
}

// In sets the component on a copy of e.
func (e *Error) In(component string) *Error {
	c := *e
	c.Component = component
	return &c
}

// WithField sets the failing field on a copy of e.
func (e *Error) WithField(field string) *Error {
	c := *e
	c.Field = field
	return &c
}

// WithID sets the subject id on a copy of e.
func (e *Error) WithID(id fmt.Stringer) *Error {
	c := *e
	c.ID = id.String()
	return &c
}

func sentinel(code Code, msg string) *Error {
	return &Error{Kind: KindFor(code), Code: code, Message: msg}
}

// Sentinels for errors.Is. Components return copies decorated with
// component, field and id.
var (
	ErrUnauthorized          = sentinel(CodeUnauthorized, "caller lacks required role")
	ErrInvalidSignature      = sentinel(CodeInvalidSignature, "invalid signature")
	ErrPaused                = sentinel(CodePaused, "paused")
	ErrNotPaused             = sentinel(CodeNotPaused, "not paused")
	ErrLastAdmin             = sentinel(CodeLastAdmin, "cannot revoke the last admin")
	ErrReentrantCall         = sentinel(CodeReentrantCall, "reentrant call")
	ErrAlreadyClaimed        = sentinel(CodeAlreadyClaimed, "already claimed")
	ErrAlreadyExecuted       = sentinel(CodeAlreadyExecuted, "already executed")
	ErrAlreadyVerified       = sentinel(CodeAlreadyVerified, "already verified")
	ErrPayrollCancelled      = sentinel(CodePayrollCancelled, "payroll cancelled")
	ErrPayrollNotDue         = sentinel(CodePayrollNotDue, "payroll not yet due")
	ErrNotRegistered         = sentinel(CodeNotRegistered, "not registered")
	ErrBatchNotFound         = sentinel(CodeBatchNotFound, "batch not found")
	ErrPaymentNotFound       = sentinel(CodePaymentNotFound, "payment not found")
	ErrPayrollNotFound       = sentinel(CodePayrollNotFound, "payroll not found")
	ErrUnknownMethod         = sentinel(CodeUnknownMethod, "unknown method")
	ErrZeroAddress           = sentinel(CodeZeroAddress, "zero address")
	ErrZeroRecipient         = sentinel(CodeZeroRecipient, "zero recipient")
	ErrZeroEntity            = sentinel(CodeZeroEntity, "zero entity")
	ErrZeroAmount            = sentinel(CodeZeroAmount, "zero amount")
	ErrZeroDeposit           = sentinel(CodeZeroDeposit, "zero deposit")
	ErrZeroWithdrawal        = sentinel(CodeZeroWithdrawal, "zero withdrawal")
	ErrZeroHash              = sentinel(CodeZeroHash, "zero hash")
	ErrZeroEphemeralKey      = sentinel(CodeZeroEphemeralKey, "zero ephemeral key")
	ErrEmptyRecipients       = sentinel(CodeEmptyRecipients, "empty recipients")
	ErrEmptyCid              = sentinel(CodeEmptyCid, "empty CID")
	ErrLengthMismatch        = sentinel(CodeLengthMismatch, "length mismatch")
	ErrInvalidScheduleTime   = sentinel(CodeInvalidScheduleTime, "invalid schedule time")
	ErrInvalidArgument       = sentinel(CodeInvalidArgument, "invalid argument")
	ErrOverflow              = sentinel(CodeOverflow, "arithmetic overflow")
	ErrAlreadyRegistered     = sentinel(CodeAlreadyRegistered, "already registered")
	ErrNonceAlreadyUsed      = sentinel(CodeNonceAlreadyUsed, "nonce already used")
	ErrInsufficientBalance   = sentinel(CodeInsufficientBalance, "insufficient balance")
	ErrInsufficientAllowance = sentinel(CodeInsufficientAllowance, "insufficient allowance")
	ErrInsufficientDeposit   = sentinel(CodeInsufficientDeposit, "insufficient deposit")
	ErrInsufficientLiquidity = sentinel(CodeInsufficientLiquidity, "insufficient pool liquidity")
)

// KindOf returns the kind of a ledger error, or "" for other errors.
// Uses errors.As to see through wrapping.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// CodeOf returns the code of a ledger error, or "" for other errors.
func CodeOf(err error) Code {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsKind reports whether err is a ledger error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
