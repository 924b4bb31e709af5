// Package errors provides the error taxonomy of the analysis core.
// Every fatal condition is classified as a configuration, resource or
// numerical error so the adaptive controller can report it uniformly.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ClassConfiguration marks an unsound model (no free dofs, dangling constraint references)
	ClassConfiguration ErrorClass = iota
	// ClassResource marks memory pressure that spilling could not relieve
	ClassResource
	// ClassNumerical marks a singular or near-singular system
	ClassNumerical
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ClassConfiguration:
		return "configuration"
	case ClassResource:
		return "resource"
	case ClassNumerical:
		return "numerical"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Configuration errors
	ErrNoEquations       = errors.New("model has no free degrees of freedom")
	ErrMissingFunction   = errors.New("constraint references a function that is not in the current numbering")
	ErrMissingNode       = errors.New("constraint references an unknown node")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrUnsupportedShape  = errors.New("element shape has no registered capability")
	ErrDegenerateElement = errors.New("element has non-positive volume")
	ErrElementID         = errors.New("element id does not match its index in the mesh")

	// Resource errors
	ErrElementTooLarge = errors.New("element stiffness exceeds the memory budget even with spilling")
	ErrScratchIO       = errors.New("scratch file i/o failed")
	ErrSystemTooLarge  = errors.New("system exceeds the dense solver limit")

	// Numerical errors
	ErrSingularSystem = errors.New("singular or near-singular system")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return fmt.Sprintf("%s: %s.%s: %s: %v", ce.Class, ce.Component, ce.Operation, ce.Message, ce.Err)
	}
	return fmt.Sprintf("%s: %s.%s: %v", ce.Class, ce.Component, ce.Operation, ce.Err)
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

func wrap(class ErrorClass, err error, component, operation, message string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// WrapConfiguration classifies err as a configuration error
func WrapConfiguration(err error, component, operation, message string) error {
	return wrap(ClassConfiguration, err, component, operation, message)
}

// WrapResource classifies err as a resource error
func WrapResource(err error, component, operation, message string) error {
	return wrap(ClassResource, err, component, operation, message)
}

// WrapNumerical classifies err as a numerical error
func WrapNumerical(err error, component, operation, message string) error {
	return wrap(ClassNumerical, err, component, operation, message)
}

// ClassOf returns the class of err and whether it was classified at all
func ClassOf(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	switch {
	case errors.Is(err, ErrNoEquations), errors.Is(err, ErrMissingFunction),
		errors.Is(err, ErrMissingNode), errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrUnsupportedShape), errors.Is(err, ErrDegenerateElement),
		errors.Is(err, ErrElementID):
		return ClassConfiguration, true
	case errors.Is(err, ErrElementTooLarge), errors.Is(err, ErrScratchIO),
		errors.Is(err, ErrSystemTooLarge):
		return ClassResource, true
	case errors.Is(err, ErrSingularSystem):
		return ClassNumerical, true
	}
	return 0, false
}

// IsConfiguration checks if an error is a configuration error
func IsConfiguration(err error) bool {
	c, ok := ClassOf(err)
	return ok && c == ClassConfiguration
}

// IsResource checks if an error is a resource error
func IsResource(err error) bool {
	c, ok := ClassOf(err)
	return ok && c == ClassResource
}

// IsNumerical checks if an error is a numerical error
func IsNumerical(err error) bool {
	c, ok := ClassOf(err)
	return ok && c == ClassNumerical
}

// ElementError attaches an element id to an error
type ElementError struct {
	ElementID int
	Err       error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("element %d: %v", e.ElementID, e.Err)
}

func (e *ElementError) Unwrap() error { return e.Err }

// PassError reports where the adaptive loop stopped on a fatal error
type PassError struct {
	Pass         int
	NumEquations int
	Err          error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("pass %d failed with %d equations: %v", e.Pass, e.NumEquations, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }

// Is and As re-export the standard library helpers so callers importing
// this package do not need a second errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target
func As(err error, target any) bool { return errors.As(err, target) }

// New returns an error that formats as the given text
func New(text string) error { return errors.New(text) }
