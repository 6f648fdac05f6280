package service

import (
	"errors"
	"fmt"

	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/repository"
)

var (
	ErrForbidden          = errors.New("access denied")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrConflict           = errors.New("conflicting transition")
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID int64
	Admin  bool
}

func (a Actor) canSee(order *entity.Order) bool {
	return a.Admin || order.UserID == a.UserID
}

// ValidationError is returned before any side effect happened.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError names the missing resource ("order", "product", ...).
type NotFoundError struct {
	Resource string
	ID       interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return repository.ErrNotFound }

// ConflictError carries the order as it is now so callers can treat the
// conflict as an answer rather than a failure.
type ConflictError struct {
	Message string
	Current entity.OrderStatus
	Order   *entity.Order
}

func (e *ConflictError) Error() string {
	if e.Current == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (current status %s)", e.Message, e.Current)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

func conflict(order *entity.Order, format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...), Current: order.Status, Order: order}
}

// notFound converts a repository miss into a NotFoundError and passes any
// other error through.
func notFound(err error, resource string, id interface{}) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &NotFoundError{Resource: resource, ID: id}
	}
	return err
}
