// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when an entity id does not resolve.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

func NewNotFound(entity string, id fmt.Stringer) error {
	return &NotFoundError{Entity: entity, ID: id.String()}
}

// ColumnNotFoundError names a column that is absent from a dataset.
type ColumnNotFoundError struct {
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found in dataset", e.Column)
}

func NewColumnNotFound(column string) error {
	return &ColumnNotFoundError{Column: column}
}

// InvalidStateError is returned when an operation is attempted from a
// status that does not allow it.
type InvalidStateError struct {
	Entity    string
	ID        string
	Status    string
	Operation string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in status %q", e.Operation, e.Entity, e.ID, e.Status)
}

func NewInvalidState(entity string, id fmt.Stringer, status, operation string) error {
	return &InvalidStateError{Entity: entity, ID: id.String(), Status: status, Operation: operation}
}

// AlreadySentError is the InvalidStateError of a campaign that already completed.
type AlreadySentError struct {
	InvalidStateError
}

func (e *AlreadySentError) Error() string {
	return fmt.Sprintf("campaign %s was already sent", e.ID)
}

func (e *AlreadySentError) Unwrap() error {
	return &e.InvalidStateError
}

func NewAlreadySent(id fmt.Stringer) error {
	return &AlreadySentError{InvalidStateError{
		Entity:    "campaign",
		ID:        id.String(),
		Status:    "completed",
		Operation: "send",
	}}
}

// MalformedInputError is returned for tabular input that cannot be parsed.
type MalformedInputError struct {
	Reason string
}

func (e *MalformedInputError) Error() string {
	return "malformed input: " + e.Reason
}

func NewMalformedInput(reason string) error {
	return &MalformedInputError{Reason: reason}
}

// TransportError wraps a mail transport failure for one recipient. It is
// tallied by the dispatcher and never returned from a send.
type TransportError struct {
	Recipient string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.Recipient, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsInvalidState reports whether err is (or wraps) an InvalidStateError,
// including AlreadySentError.
func IsInvalidState(err error) bool {
	var is *InvalidStateError
	return errors.As(err, &is)
}
