package matrix

import (
	"errors"
	"fmt"
)

var (
	ErrMissingHomeserver = errors.New("homeserver url is required")
	ErrMissingNextBatch  = errors.New("sync response has no next_batch")
)

// Error is a Matrix client-server API error response
type Error struct {
	StatusCode int    `json:"-"`
	ErrCode    string `json:"errcode"`
	Message    string `json:"error"`
}

func (e *Error) Error() string {
	if e.ErrCode == "" {
		return fmt.Sprintf("matrix: http %d", e.StatusCode)
	}
	return fmt.Sprintf("matrix: %s (http %d): %s", e.ErrCode, e.StatusCode, e.Message)
}

// IsUnknownToken reports whether err means the access token was revoked
func IsUnknownToken(err error) bool {
	var merr *Error
	return errors.As(err, &merr) && merr.ErrCode == "M_UNKNOWN_TOKEN"
}
