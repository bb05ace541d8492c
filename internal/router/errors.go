package router

import (
	"errors"
	"fmt"

	"liveclass/pkg/types"
)

// Dispatch outcomes. None of these are sent to the peer.
var (
	ErrRateLimitExceeded = errors.New("signal rate limit exceeded")
	ErrNotJoined         = errors.New("connection has not joined a room")
	ErrUndecodable       = fmt.Errorf("%w: frame is not a JSON object", types.ErrMalformed)
)
