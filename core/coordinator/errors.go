package coordinator

import "fmt"

// Code 处理错误码
type Code int

const (
	CodeGeneric         Code = -1
	CodeFileNotFound    Code = 1
	CodeFileNotReady    Code = 3
	CodeMappingNotFound Code = 4
	CodePrecondition    Code = 5
	CodeDuplicate       Code = 6
	CodeBusy            Code = 7
)

// ProcessingError is a coordinator failure with a stable code.
type ProcessingError struct {
	Code      Code
	Message   string
	retryable bool
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Retryable reports whether redelivering the message can succeed later.
func (e *ProcessingError) Retryable() bool {
	return e.retryable
}

// Busy reports lock contention; the message is fine and should come back later.
func (e *ProcessingError) Busy() bool {
	return e.Code == CodeBusy
}

var (
	ErrPrimaryTagMissing       = &ProcessingError{Code: CodePrecondition, Message: "primary tag missing", retryable: true}
	ErrPrimaryTagNotReady      = &ProcessingError{Code: CodeFileNotReady, Message: "primary tag not completed", retryable: true}
	ErrTaggingAlreadyRequested = &ProcessingError{Code: CodeDuplicate, Message: "tagging already requested"}
	ErrFileBusy                = &ProcessingError{Code: CodeBusy, Message: "file is being processed", retryable: true}
	ErrFileNotFound            = &ProcessingError{Code: CodeFileNotFound, Message: "file not found"}
	ErrSourceNotFound          = &ProcessingError{Code: CodeGeneric, Message: "source not found", retryable: true}
	ErrPlaylistNotFound        = &ProcessingError{Code: CodePrecondition, Message: "playlist not found"}
	ErrNoSubscribers           = &ProcessingError{Code: CodePrecondition, Message: "playlist has no subscribers"}
	ErrTagNotFound             = &ProcessingError{Code: CodeMappingNotFound, Message: "tag not found"}
	ErrInvalidResult           = &ProcessingError{Code: CodeGeneric, Message: "invalid result status"}
)
