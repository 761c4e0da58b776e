package testutil

import (
	"time"

	"github.com/c360/ringkit/config"
)

// SmallRuntime returns three 32-byte channels, two 16-byte buffers and a
// 20ms flush with millisecond retries.
func SmallRuntime() (config.RuntimeConfig, config.FlushConfig) {
	rc := config.RuntimeConfig{
		Name:         "test",
		Channels:     3,
		ChannelSize:  32,
		Buffers:      2,
		BufferSize:   16,
		MailboxDepth: 4,
		IngestQueue:  8,
		IngestPolicy: "drop_oldest",
	}
	fc := config.FlushConfig{
		Interval:     config.Duration(20 * time.Millisecond),
		MaxRetries:   2,
		InitialDelay: config.Duration(time.Millisecond),
		MaxDelay:     config.Duration(2 * time.Millisecond),
	}
	return rc, fc
}
