package domain

import (
	"errors"
	"fmt"
)

// Kind is the stable classification of a failure surfaced to callers.
type Kind string

const (
	KindUnauthenticated   Kind = "Unauthenticated"
	KindInvalidRequest    Kind = "InvalidRequest"
	KindNotFound          Kind = "NotFound"
	KindInsufficientStock Kind = "InsufficientStock"
	KindStorage           Kind = "StorageError"
)

var (
	ErrUnauthenticated   = &Error{Kind: KindUnauthenticated, Message: "unauthenticated"}
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest, Message: "invalid request"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock, Message: "insufficient stock"}
	ErrStorage           = &Error{Kind: KindStorage, Message: "storage error"}
)

type Error struct {
	Kind      Kind
	Message   string
	ItemID    int64
	SizeID    int64
	Requested int
	Available int
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.ItemID != 0 || e.SizeID != 0 {
		msg = fmt.Sprintf("%s (item %d, size %d)", msg, e.ItemID, e.SizeID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds for every not-found error regardless of its details.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func StockNotFound(key InventoryKey) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: "unknown item or size",
		ItemID:  key.ItemID,
		SizeID:  key.SizeID,
	}
}

func InsufficientStock(key InventoryKey, requested, available int) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		Message:   fmt.Sprintf("insufficient stock: requested %d, available %d", requested, available),
		ItemID:    key.ItemID,
		SizeID:    key.SizeID,
		Requested: requested,
		Available: available,
	}
}

func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Message: op, Err: err}
}

// KindOf classifies err. Errors that carry no kind are storage failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}
