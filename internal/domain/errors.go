package domain

import "errors"

var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrMalformedShape      = errors.New("malformed upstream shape")
	ErrConnectionClosed    = errors.New("connection closed")
	ErrSendBufferFull      = errors.New("send buffer full")
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrMalformedMessage    = errors.New("malformed client message")
)
