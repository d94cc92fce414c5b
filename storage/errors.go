package storage

import "errors"

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: immutable object mismatch")

	// ErrTipMoved is returned by ChainStore.AppendHeader when the stored tip
	// no longer matches the caller's expected tip. The append did not happen.
	ErrTipMoved = errors.New("storage: chain tip moved")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsTipMoved(err error) bool { return errors.Is(err, ErrTipMoved) }
