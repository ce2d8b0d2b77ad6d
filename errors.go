package patchbay

import "errors"

var (
	ErrInvalidChannel = errors.New("channel must not be negative")
	ErrDuplicateLink  = errors.New("endpoints already linked")
	ErrLinkExists     = errors.New("link already connected")
	ErrNilEndpoint    = errors.New("source, target and link must not be nil")
	ErrTargetPanic    = errors.New("target panicked")

	ErrLoopClosed  = errors.New("loop closed")
	ErrLoopRunning = errors.New("loop already running")
)
