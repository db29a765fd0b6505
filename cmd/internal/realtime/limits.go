package realtime

import "time"

const (
	// Clients only send small control messages.
	maxFrameBytes = 4 << 10

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection inbound message rate.
	rateLimitPerSecond = 2
	rateLimitBurst     = 10
)
