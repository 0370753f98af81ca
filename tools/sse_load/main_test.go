package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsumeCountsFrames(t *testing.T) {
	stream := strings.Join([]string{
		"event: no_data",
		"data: {}",
		"",
		": heartbeat",
		"id: 7",
		"event: scan",
		`data: {"seq":7}`,
		"",
		"id: 5",
		"event: scan",
		`data: {"seq":5}`,
		"",
	}, "\n")

	stats := &loadStats{}
	consume(context.Background(), strings.NewReader(stream), stats)

	assert.Equal(t, int64(2), stats.scans.Load())
	assert.Equal(t, int64(1), stats.noData.Load())
	assert.Equal(t, int64(1), stats.heartbeats.Load())
	assert.Equal(t, uint64(7), stats.lastID.Load())
	assert.Equal(t, int64(1), stats.streamErrs.Load(), "EOF ends the stream")
}
