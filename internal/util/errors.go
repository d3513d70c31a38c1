package util

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("invalid submission")
	ErrNotAssigned       = errors.New("retest not assigned to this student")
	ErrWindowClosed      = errors.New("retest window is closed")
	ErrAlreadyCompleted  = errors.New("retest already completed")
	ErrAttemptsExhausted = errors.New("no retest attempts remaining")
	ErrConcurrentUpdate  = errors.New("retest record was modified concurrently")
	ErrNotFound          = errors.New("record not found")
	ErrForbidden         = errors.New("not allowed to view this assignment")
)

// ValidationError 包装 ErrValidation 并附带具体原因
func ValidationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// PersistenceError 存储层的意外错误，只记日志，不返回给客户端
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsClientError 是否应返回 HTTP 400
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotAssigned) ||
		errors.Is(err, ErrWindowClosed) ||
		errors.Is(err, ErrAlreadyCompleted) ||
		errors.Is(err, ErrAttemptsExhausted)
}

// RejectionReason 资格校验失败的稳定标签，用于监控指标
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotAssigned):
		return "not_assigned"
	case errors.Is(err, ErrWindowClosed):
		return "window_closed"
	case errors.Is(err, ErrAlreadyCompleted):
		return "already_completed"
	case errors.Is(err, ErrAttemptsExhausted):
		return "attempts_exhausted"
	default:
		return "error"
	}
}
