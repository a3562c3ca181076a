package apperr

import (
	"errors"
	"fmt"
)

const (
	MetaReason    = "reason"
	MetaStage     = "stage"
	MetaField     = "field"
	MetaRunID     = "run_id"
	MetaStep      = "step"
	MetaDashboard = "dashboard"
	MetaSelector  = "selector"
	MetaURL       = "url"
	MetaAttempts  = "attempts"
	MetaPath      = "path"

	StageBrowser        = "browser"
	StageNavigation     = "navigation"
	StageAuthentication = "authentication"
	StageFrame          = "frame"
	StageFilter         = "filter"
	StageUnitSwitch     = "unit_switch"
	StageSubmit         = "submit"
	StageMetric         = "metric"
	StageExport         = "export"
	StageDelivery       = "delivery"
	StageArtifact       = "artifact"

	CodeInternal             = "internal"
	CodeInvalidArgument      = "invalid_argument"
	CodeNotFound             = "not_found"
	CodeTimeout              = "timeout"
	CodeIntercepted          = "intercepted"
	CodeActionFailed         = "action_failed"
	CodeConvergenceExhausted = "convergence_exhausted"
	CodeBrowserNotReady      = "browser_not_ready"
	CodeDeliveryFailed       = "delivery_failed"
	CodeParseFailed          = "parse_failed"
)

type Error struct {
	Op       string
	Code     string
	Err      error
	Metadata map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Wrap(op, code string, err error, metadata map[string]any) error {
	if metadata == nil {
		metadata = make(map[string]any)
	}

	return &Error{
		Op:       op,
		Code:     code,
		Err:      err,
		Metadata: metadata,
	}
}

func WrapWithReason(op, code string, err error, reason string) error {
	return Wrap(op, code, err, map[string]any{
		MetaReason: reason,
	})
}

func WrapErrorWithReason(op, code, reason string) error {
	return Wrap(op, code, errors.New(reason), map[string]any{
		MetaReason: reason,
	})
}

func InvalidReqError(op, field string, err error) error {
	return Wrap(op, CodeInvalidArgument, err, map[string]any{
		MetaField:  field,
		MetaReason: "invalid_request",
	})
}

func NotFoundError(op string, err error) error {
	return Wrap(op, CodeNotFound, err, map[string]any{
		MetaReason: "not_found",
	})
}

// CodeOf returns the code of the outermost *Error in the chain, or "" if there is none.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}

	return ""
}

// HasCode reports whether any *Error in the chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *Error
		if !errors.As(err, &appErr) {
			return false
		}

		if appErr.Code == code {
			return true
		}

		err = appErr.Err
	}

	return false
}

// Reason returns the reason metadata of the outermost *Error, if any.
func Reason(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		if reason, ok := appErr.Metadata[MetaReason].(string); ok {
			return reason
		}
	}

	return ""
}

// WithStage records stage on the outermost *Error of err unless a stage is already set.
func WithStage(err error, stage string) error {
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Metadata == nil {
			appErr.Metadata = make(map[string]any)
		}

		if _, ok := appErr.Metadata[MetaStage]; !ok {
			appErr.Metadata[MetaStage] = stage
		}
	}

	return err
}

// Stage returns the stage metadata of the outermost *Error, if any.
func Stage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		if stage, ok := appErr.Metadata[MetaStage].(string); ok {
			return stage
		}
	}

	return ""
}
