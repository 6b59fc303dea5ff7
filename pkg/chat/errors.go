package chat

import "errors"

var (
	ErrMissingMode         = errors.New("chat mode is required")
	ErrMissingModel        = errors.New("chat model is required")
	ErrEmptyMessage        = errors.New("message text is required")
	ErrInvalidMemory       = errors.New("unknown memory mode")
	ErrRequestInFlight     = errors.New("a request is already in flight")
	ErrUnknownConversation = errors.New("conversation not found")
)
