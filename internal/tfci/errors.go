package tfci

import "errors"

var (
	ErrCycleNotFound         = errors.New("cycle not found")
	ErrCycleNotActive        = errors.New("cycle not active")
	ErrInvalidTransition     = errors.New("invalid cycle status transition")
	ErrEmployeeNotFound      = errors.New("employee not found")
	ErrAssessmentNotFound    = errors.New("assessment not found")
	ErrSelfSelection         = errors.New("cannot select self")
	ErrNotEligible           = errors.New("peer is not eligible for this selector")
	ErrQuotaExceeded         = errors.New("quota exceeded")
	ErrSelectionLimitReached = errors.New("peer selection limit reached")
	ErrDuplicateSelection    = errors.New("already selected")
	ErrAlreadySubmitted      = errors.New("assessment already completed")
	ErrNotEvaluator          = errors.New("not the evaluator of this assessment")
	ErrValidation            = errors.New("validation failed")
)
