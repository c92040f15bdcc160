package pfq

import (
	"errors"
	"fmt"
	"syscall"
)

// Error represents a structured PFQ error with control-plane context
// (spec §7 "Error Handling Design").
type Error struct {
	Op    string       // Operation that failed (e.g., "GROUP_JOIN", "ENABLE")
	Gid   int32        // Group id (-1 if not applicable)
	Sid   int32        // Socket id (-1 if not applicable)
	Code  PfqErrorCode // High-level error category
	Errno syscall.Errno
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Gid >= 0 {
		parts = append(parts, fmt.Sprintf("gid=%d", e.Gid))
	}
	if e.Sid >= 0 {
		parts = append(parts, fmt.Sprintf("sid=%d", e.Sid))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("pfq: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("pfq: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is reports whether target shares this error's Code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// PfqErrorCode represents the control-plane error kinds enumerated in
// spec §6 "Exit codes for control-plane errors".
type PfqErrorCode string

const (
	ErrCodeInvalid          PfqErrorCode = "invalid"
	ErrCodePermissionDenied PfqErrorCode = "permission denied"
	ErrCodeOutOfMemory      PfqErrorCode = "out of memory"
	ErrCodeVersionMismatch  PfqErrorCode = "version mismatch"
	ErrCodeNotEnabled       PfqErrorCode = "not enabled"
	ErrCodeAlreadyEnabled   PfqErrorCode = "already enabled"
	ErrCodeNoSuchGroup      PfqErrorCode = "no such group"
	ErrCodeNotJoined        PfqErrorCode = "not joined"
	ErrCodeBadProgram       PfqErrorCode = "bad program"
	ErrCodeBadArgument      PfqErrorCode = "bad argument"
)

// NewError creates a new structured error not tied to a group or socket.
func NewError(op string, code PfqErrorCode, msg string) *Error {
	return &Error{Op: op, Gid: -1, Sid: -1, Code: code, Msg: msg}
}

// NewGroupError creates a new group-scoped error.
func NewGroupError(op string, gid int32, code PfqErrorCode, msg string) *Error {
	return &Error{Op: op, Gid: gid, Sid: -1, Code: code, Msg: msg}
}

// NewSocketError creates a new socket-scoped error.
func NewSocketError(op string, sid int32, code PfqErrorCode, msg string) *Error {
	return &Error{Op: op, Gid: -1, Sid: sid, Code: code, Msg: msg}
}

// WrapError wraps an existing error with PFQ context, mapping a raw
// syscall.Errno (e.g. from an mmap failure in the shared-queue package)
// to a PfqErrorCode.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if pe, ok := inner.(*Error); ok {
		return &Error{Op: op, Gid: pe.Gid, Sid: pe.Sid, Code: pe.Code, Errno: pe.Errno, Msg: pe.Msg, Inner: pe.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Gid: -1, Sid: -1, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Gid: -1, Sid: -1, Code: ErrCodeInvalid, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) PfqErrorCode {
	switch errno {
	case syscall.ENOMEM, syscall.ENOSPC:
		return ErrCodeOutOfMemory
	case syscall.EPERM, syscall.EACCES:
		return ErrCodePermissionDenied
	case syscall.EINVAL, syscall.E2BIG:
		return ErrCodeInvalid
	default:
		return ErrCodeInvalid
	}
}

// IsCode checks if an error matches a specific error code.
func IsCode(err error, code PfqErrorCode) bool {
	var pfqErr *Error
	if errors.As(err, &pfqErr) {
		return pfqErr.Code == code
	}
	return false
}

// ErrOutOfRange is returned by internal table lookups (devmap, group table,
// symbol table) for out-of-bound indices; callers wrap it with WrapError to
// attach control-plane context.
var ErrOutOfRange = NewError("", ErrCodeBadArgument, "index out of range")
