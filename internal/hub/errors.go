package hub

import "errors"

// Hub-specific error types
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrTrackChannelFull  = errors.New("hub event channel is full")
	ErrHubStopped        = errors.New("hub has been stopped")
)
