package linking

import "errors"

var (
	ErrInvalidPolicy     = errors.New("invalid linking policy")
	ErrMalformedRecord   = errors.New("malformed license record")
	ErrNotNotification   = errors.New("record is not a notification")
	ErrUnknownKind       = errors.New("unknown record kind")
	ErrUnknownConfidence = errors.New("unknown link confidence")
)
