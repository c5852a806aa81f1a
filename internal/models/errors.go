package models

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorCode is the closed set of error classifications surfaced to clients.
type ErrorCode string

const (
	// ErrCodeValidation indicates an invalid brief or spec at admission.
	ErrCodeValidation ErrorCode = "E_Validation"
	// ErrCodeNoEncoder indicates the encoder binary is missing or too old.
	ErrCodeNoEncoder ErrorCode = "E_NoEncoder"
	// ErrCodeConfigConflict indicates a Pro tier request in offline-only mode.
	ErrCodeConfigConflict ErrorCode = "E_ConfigConflict"
	// ErrCodeProviderUnavailable indicates no chain candidate is registered
	// and no terminal fallback exists.
	ErrCodeProviderUnavailable ErrorCode = "E_ProviderUnavailable"
	// ErrCodeProviderCall indicates an upstream provider error after retries.
	ErrCodeProviderCall ErrorCode = "E_ProviderCall"
	// ErrCodeTimeout indicates a provider call exceeded its stage timeout.
	ErrCodeTimeout ErrorCode = "E_Timeout"
	// ErrCodeSubprocessExit indicates a non-zero encoder exit.
	ErrCodeSubprocessExit ErrorCode = "E_SubprocessExit"
	// ErrCodeDiskSpace indicates a write failure or disk precheck failure.
	ErrCodeDiskSpace ErrorCode = "E_DiskSpace"
	// ErrCodeCancelled indicates explicit cancellation.
	ErrCodeCancelled ErrorCode = "E_Cancelled"
	// ErrCodeInternal indicates a bug or broken invariant.
	ErrCodeInternal ErrorCode = "E_Internal"
)

// Retryable reports whether the runner may retry a stage that failed with
// this code. The set is deliberately table-driven rather than derived from
// error types.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrCodeTimeout, ErrCodeProviderCall, ErrCodeSubprocessExit:
		return true
	}
	return false
}

// StageError is a classified error carrying its taxonomy code. It is the
// only error type that crosses component boundaries out of the pipeline.
type StageError struct {
	Code    ErrorCode
	Message string
	// Transient marks an ErrCodeProviderCall or ErrCodeSubprocessExit as
	// retryable; other codes ignore it.
	Transient bool
	// Err is the wrapped cause, if any.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *StageError) Unwrap() error { return e.Err }

// NewStageError creates a classified stage error.
func NewStageError(code ErrorCode, msg string, cause error) *StageError {
	return &StageError{Code: code, Message: msg, Err: cause}
}

// ClassifyError maps an arbitrary error to its taxonomy code. Already
// classified errors keep their code; context cancellation maps to
// E_Cancelled; deadline expiry to E_Timeout; everything else is E_Internal.
func ClassifyError(err error) *StageError {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, ErrCancelled):
		return &StageError{Code: ErrCodeCancelled, Message: "cancelled", Err: err}
	case isContextCancelled(err):
		return &StageError{Code: ErrCodeCancelled, Message: "cancelled", Err: err}
	case isContextDeadline(err):
		return &StageError{Code: ErrCodeTimeout, Message: "deadline exceeded", Err: err}
	}
	return &StageError{Code: ErrCodeInternal, Message: err.Error(), Err: err}
}

// Sentinel errors shared across packages.
var (
	// ErrCancelled marks explicit user or shutdown cancellation.
	ErrCancelled = errors.New("cancelled")
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")
)

// JobError is one entry in a job's ordered error list.
type JobError struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	Remediation string    `json:"remediation,omitempty"`
	Stage       Stage     `json:"stage"`
}

// FailureDetails is the structured terminal failure record exposed over
// the API for failed jobs.
type FailureDetails struct {
	Stage            Stage     `json:"stage"`
	Code             ErrorCode `json:"code"`
	Message          string    `json:"message"`
	SuggestedActions []string  `json:"suggested_actions"`
	FailedAt         time.Time `json:"failed_at"`
}

// Remediation returns user-facing remediation text for an error code,
// optionally specialized by stage.
func Remediation(code ErrorCode, stage Stage) string {
	switch code {
	case ErrCodeNoEncoder:
		return "Install ffmpeg (>= 4.0) or set encoder.binary_path in the configuration"
	case ErrCodeConfigConflict:
		return "Pro tier requires network access; switch to Free or ProIfAvailable, or disable offline-only mode"
	case ErrCodeProviderUnavailable:
		return "Register at least one provider for this stage or rely on the built-in fallback"
	case ErrCodeTimeout:
		if stage == StageScript {
			return "Try a smaller model, ensure sufficient free RAM, and check `ollama ps`"
		}
		return "Retry the job; if it persists, lower the output resolution or duration"
	case ErrCodeProviderCall:
		return "Retry with a different tier or check the provider's credentials and availability"
	case ErrCodeSubprocessExit:
		return "Inspect the encoder log for the failing invocation and retry"
	case ErrCodeDiskSpace:
		return "Free at least 1 GiB on the output drive and retry"
	case ErrCodeValidation:
		return "Correct the request fields reported in the validation issues"
	case ErrCodeCancelled:
		return ""
	}
	return "Retry; if the problem persists, file a bug with the job log"
}

// SuggestedActions returns 2-5 short remediation strings for a failure.
func SuggestedActions(code ErrorCode, stage Stage) []string {
	switch code {
	case ErrCodeNoEncoder:
		return []string{
			"Install ffmpeg version 4.0 or newer",
			"Set encoder.binary_path if ffmpeg is not on PATH",
			"Run `aura doctor` to verify the host setup",
		}
	case ErrCodeTimeout:
		if stage == StageScript {
			return []string{
				"Switch to a smaller local model",
				"Check that the model host has free RAM",
				"Check `ollama ps` for stuck loads",
				"Retry with the Free tier",
			}
		}
		return []string{
			"Retry the job",
			"Reduce the target duration or resolution",
		}
	case ErrCodeSubprocessExit:
		return []string{
			"Inspect the encoder stderr captured in the job log",
			"Retry the job",
			"Verify the configured codec is supported by this ffmpeg build",
		}
	case ErrCodeProviderCall:
		return []string{
			"Retry with a different provider tier",
			"Verify the provider is reachable",
		}
	case ErrCodeDiskSpace:
		return []string{
			"Free disk space on the output drive",
			"Point storage.output_dir at a larger volume",
		}
	}
	return []string{
		"Retry the job",
		"Check the server log for details",
	}
}

func isContextCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

func isContextDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
