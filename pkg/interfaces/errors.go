package interfaces

import (
	"errors"
	"fmt"

	"liveclass/pkg/types"
)

// Common interface errors used across components
var (
	ErrSessionNotFound = fmt.Errorf("session %w", types.ErrNotFound)
	ErrPeerClosed      = errors.New("peer closed")
	ErrPeerBufferFull  = errors.New("peer send buffer full")
)
