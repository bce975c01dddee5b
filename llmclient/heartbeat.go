package llmclient

import (
	"context"
	"io"
	"time"
)

// startHeartbeat writes a single null byte to sink every interval until ctx
// is done, preventing SSH idle termination during a long completion call
// (§4.3, §9 "SSH keep-alive"). It never touches the response body — the
// write target is whatever sink the caller wired up (typically os.Stdout on
// an interactive session), never the LLM response stream.
//
// Returns a stop function the caller must invoke once the call returns.
func startHeartbeat(ctx context.Context, sink io.Writer, interval time.Duration) func() {
	if interval <= 0 {
		interval = 45 * time.Second
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				_, _ = sink.Write([]byte{0})
			}
		}
	}()

	return func() { close(done) }
}
