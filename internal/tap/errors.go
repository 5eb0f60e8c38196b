package tap

import "errors"

var (
	ErrTapNotFound    = errors.New("tap not found")
	ErrInvalidAddress = errors.New("invalid upstream address")
	ErrBindFailure    = errors.New("failed to bind tap listener")
	ErrPortInUse      = errors.New("port already in use")
)
