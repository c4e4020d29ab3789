// Command ws_load opens many websocket clients against the bot's hub and counts the frames
// they receive.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vadiminshakov/tribeca/internal/messaging"
)

type counters struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	snapshots   atomic.Int64
	updates     atomic.Int64
}

func (c *counters) String() string {
	return fmt.Sprintf("connected=%d connect_errs=%d stream_errs=%d snapshots=%d updates=%d",
		c.connected.Load(), c.connectErrs.Load(), c.streamErrs.Load(), c.snapshots.Load(), c.updates.Load())
}

func main() {
	var (
		targetURL    string
		connections  int
		testDuration time.Duration
		rampUp       time.Duration
		topics       string
	)

	flag.StringVar(&targetURL, "url", "ws://localhost:3000/ws", "hub websocket URL")
	flag.IntVar(&connections, "conns", 500, "number of concurrent clients")
	flag.DurationVar(&testDuration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "spread client starts across this window")
	flag.StringVar(&topics, "topics", strings.Join(messaging.AllTopics, ","), "comma separated topics to subscribe to")
	flag.Parse()

	if connections <= 0 {
		log.Fatalf("invalid conns: %d", connections)
	}
	if rampUp == 0 && connections > 100 {
		rampUp = max(time.Second, time.Duration(connections/500)*time.Second)
		log.Printf("no ramp-up given, using %s", rampUp)
	}

	subscribe := strings.Split(topics, ",")
	log.Printf("starting ws load: url=%s conns=%d duration=%s ramp=%s topics=%d",
		targetURL, connections, testDuration, rampUp, len(subscribe))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if testDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, testDuration)
		defer cancel()
	}

	var (
		stats    counters
		wg       sync.WaitGroup
		start    = time.Now()
		interval time.Duration
	)
	if rampUp > 0 {
		interval = rampUp / time.Duration(connections)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Printf("status: %s elapsed=%s", &stats, time.Since(start).Truncate(time.Second))
			}
		}
	}()

	for i := 0; i < connections && ctx.Err() == nil; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				continue
			case <-time.After(interval):
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			runClient(ctx, targetURL, subscribe, &stats)
		}()
	}

	wg.Wait()

	elapsed := max(time.Since(start), time.Millisecond)
	fmt.Printf("done: %s elapsed=%s updates/s=%.2f\n",
		&stats, elapsed.Truncate(time.Millisecond), float64(stats.updates.Load())/elapsed.Seconds())

	if stats.connected.Load() == 0 {
		os.Exit(1)
	}
}

func runClient(ctx context.Context, url string, topics []string, stats *counters) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		stats.connectErrs.Add(1)
		return
	}
	defer conn.Close()

	for _, t := range topics {
		if err := conn.WriteJSON(messaging.Frame{Topic: t, Kind: messaging.KindSubscribe}); err != nil {
			stats.connectErrs.Add(1)
			return
		}
	}
	stats.connected.Add(1)

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		var f messaging.Frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() == nil {
				stats.streamErrs.Add(1)
			}
			return
		}
		if f.Kind == messaging.KindSnapshot {
			stats.snapshots.Add(1)
		} else {
			stats.updates.Add(1)
		}
	}
}
