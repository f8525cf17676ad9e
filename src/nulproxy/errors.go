package nulproxy

import (
	"errors"
	"net"
)

var (
	// ErrWrongThread is returned when a send is attempted from outside the
	// event loop's worker. Route such sends through Loop.Schedule.
	ErrWrongThread = errors.New("send called off the event loop worker")
	// ErrClosed is returned when operating on a disposed session.
	ErrClosed = net.ErrClosed
)

func IsErrWrongThread(err error) bool {
	return errors.Is(err, ErrWrongThread)
}

func IsErrClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}
