package errors

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeConfiguration        ErrorCode = "CONFIGURATION_ERROR"
	CodeRelativeImportEscape ErrorCode = "RELATIVE_IMPORT_ESCAPE"
	CodeUnknownModule        ErrorCode = "UNKNOWN_MODULE"
	CodeDuplicateModule      ErrorCode = "DUPLICATE_MODULE"
	CodeParseFailed          ErrorCode = "PARSE_FAILED"
	CodeUnmappedRequirement  ErrorCode = "UNMAPPED_REQUIREMENT"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeValidationError      ErrorCode = "VALIDATION_ERROR"
	CodeInternal             ErrorCode = "INTERNAL_ERROR"
	CodeNotSupported         ErrorCode = "NOT_SUPPORTED"
)

type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
}

const (
	CtxPath      = "path"
	CtxModule    = "module"
	CtxImport    = "import"
	CtxNamespace = "namespace"
	CtxLine      = "line"
	CtxOperation = "operation"
	CtxResolver  = "resolver"
)

func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) > 0 {
		msg += fmt.Sprintf(" %v", e.Context)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg}
}

func Newf(code ErrorCode, format string, args ...interface{}) error {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// AddContext attaches a context value, promoting plain errors to CodeInternal.
func AddContext(err error, key string, value interface{}) error {
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return de
	}
	return &DomainError{
		Code:    CodeInternal,
		Message: "wrapped error",
		Err:     err,
		Context: map[string]interface{}{key: value},
	}
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost DomainError, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the message of the outermost DomainError and its cause,
// without the code prefix or context. Other errors return err.Error().
func MessageOf(err error) string {
	var de *DomainError
	if !errors.As(err, &de) {
		return err.Error()
	}
	if de.Err != nil {
		return de.Message + ": " + de.Err.Error()
	}
	return de.Message
}

// IsFatal reports whether err must stop a run before any resolution starts.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case CodeConfiguration, CodeDuplicateModule:
		return true
	}
	return false
}
