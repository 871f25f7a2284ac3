package chat

import "errors"

var (
	ErrChannelNotFound = errors.New("chat channel not found")
	ErrNotAParticipant = errors.New("sender is not a participant of this channel")
	ErrChannelClosed   = errors.New("chat channel is closed")
	ErrEmptyMessage    = errors.New("message body is empty")
)
