// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInsufficientData     = errors.New("insufficient data")
	ErrUndefinedRatio       = errors.New("undefined ratio: reference leg has zero length")
	ErrDegenerateRiskReward = errors.New("degenerate risk/reward: entry equals stop-loss")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrDataNotFound         = errors.New("data not found")
	ErrDatabaseError        = errors.New("database error")
	ErrPublishFailed        = errors.New("publish failed")
	ErrUnknownPattern       = errors.New("unknown pattern type")
)

// ScanStage names a stage of one scan cycle.
type ScanStage string

const (
	StageCollecting ScanStage = "COLLECTING_CANDLES"
	StageExtracting ScanStage = "EXTRACTING_SWINGS"
	StageMatching   ScanStage = "MATCHING_WINDOWS"
	StageScoring    ScanStage = "SCORING"
	StageEmitting   ScanStage = "EMITTING"
)

// ScanError reports where a scan cycle for one pair stopped.
type ScanError struct {
	Symbol    string
	Timeframe string
	Stage     ScanStage
	Err       error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan error [%s@%s] %s: %v", e.Symbol, e.Timeframe, e.Stage, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// NewScanError creates a new ScanError.
func NewScanError(symbol, timeframe string, stage ScanStage, err error) *ScanError {
	return &ScanError{
		Symbol:    symbol,
		Timeframe: timeframe,
		Stage:     stage,
		Err:       err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
