// Command sse_load opens many concurrent subscriptions to the dashboard scan
// stream and reports how many frames each kind of event produced.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

type loadStats struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	scans       atomic.Int64
	noData      atomic.Int64
	heartbeats  atomic.Int64
	lastID      atomic.Uint64
}

func (s *loadStats) String() string {
	return fmt.Sprintf("connected=%d connect_errs=%d stream_errs=%d scans=%d no_data=%d heartbeats=%d last_id=%d",
		s.connected.Load(), s.connectErrs.Load(), s.streamErrs.Load(),
		s.scans.Load(), s.noData.Load(), s.heartbeats.Load(), s.lastID.Load())
}

// observe accounts one stream line. Frames are counted on their "event:" line.
func (s *loadStats) observe(line string) {
	switch {
	case line == "" || line == "\n" || line == "\r\n":
	case line[0] == ':':
		s.heartbeats.Add(1)
	case hasPrefix(line, "event: scan"):
		s.scans.Add(1)
	case hasPrefix(line, "event: no_data"):
		s.noData.Add(1)
	case hasPrefix(line, "id: "):
		var id uint64
		if _, err := fmt.Sscanf(line, "id: %d", &id); err == nil {
			for {
				cur := s.lastID.Load()
				if id <= cur || s.lastID.CompareAndSwap(cur, id) {
					break
				}
			}
		}
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func subscribe(ctx context.Context, client *http.Client, url, lastEventID string, stats *loadStats) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		stats.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := client.Do(req)
	if err != nil {
		stats.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		stats.connectErrs.Add(1)
		return
	}

	stats.connected.Add(1)
	consume(ctx, resp.Body, stats)
}

func consume(ctx context.Context, body io.Reader, stats *loadStats) {
	reader := bufio.NewReader(body)
	for ctx.Err() == nil {
		line, err := reader.ReadString('\n')
		if line != "" {
			stats.observe(line)
		}
		if err != nil {
			if ctx.Err() == nil {
				stats.streamErrs.Add(1)
			}
			return
		}
	}
}

func main() {
	var (
		targetURL   string
		connections int
		duration    time.Duration
		rampUp      time.Duration
		lastEventID string
	)

	flag.StringVar(&targetURL, "url", "http://localhost:8080/scans/stream", "scan stream URL")
	flag.IntVar(&connections, "conns", 500, "number of concurrent subscriptions")
	flag.DurationVar(&duration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "spread subscription starts across this window")
	flag.StringVar(&lastEventID, "last-event-id", "", "resume every subscription after this journal index")
	flag.Parse()

	if connections <= 0 {
		log.Fatalf("invalid conns: %d", connections)
	}
	if rampUp == 0 && connections > 100 {
		rampUp = max(time.Duration(connections/500)*time.Second, time.Second)
	}

	log.Printf("starting scan stream load: url=%s conns=%d duration=%s ramp=%s", targetURL, connections, duration, rampUp)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     connections + 100,
			MaxIdleConnsPerHost: connections + 100,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	stats := &loadStats{}
	start := time.Now()

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Printf("status: %s elapsed=%s", stats, time.Since(start).Truncate(time.Second))
			}
		}
	}()

	var step time.Duration
	if rampUp > 0 {
		step = rampUp / time.Duration(connections)
	}

	var g errgroup.Group
	for i := 0; i < connections && ctx.Err() == nil; i++ {
		if i > 0 && step > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(step):
			}
		}
		g.Go(func() error {
			subscribe(ctx, client, targetURL, lastEventID, stats)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := max(time.Since(start), time.Millisecond)
	fmt.Printf("done: %s elapsed=%s scans/s=%.2f\n", stats, elapsed.Truncate(time.Millisecond), float64(stats.scans.Load())/elapsed.Seconds())
}
