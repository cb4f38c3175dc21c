package topics

import "errors"

var (
	ErrIndexOutOfRange = errors.New("topic index out of range")
	ErrSameIndex       = errors.New("topic pair names the same index twice")
	ErrEmptyTopic      = errors.New("topic name is empty")
	ErrDuplicateTopic  = errors.New("merged topic collides with a surviving topic")
)
