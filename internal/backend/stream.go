package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// SnapshotFeed maintains a websocket subscription to the backend's live
// user-data push channel. Each frame is a full UserData snapshot; the feed
// hands it to the sink and otherwise stays out of the economy. Pushes drive
// reconciliation diffs without the client having to poll.
type SnapshotFeed struct {
	url    string
	token  string
	sink   func(UserData)
	logger *log.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSnapshotFeed creates a feed for the given websocket URL. sink is invoked
// on the feed's goroutine for every pushed snapshot.
func NewSnapshotFeed(wsURL, authToken string, sink func(UserData), logger *log.Logger) *SnapshotFeed {
	return &SnapshotFeed{
		url:    wsURL,
		token:  authToken,
		sink:   sink,
		logger: logger.With("component", "snapshot-feed"),
	}
}

// Start connects and begins delivering snapshots. Connection drops are
// retried with exponential backoff until Stop or ctx cancellation.
func (f *SnapshotFeed) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})

	go func() {
		defer close(f.done)
		policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
		for {
			err := backoff.Retry(func() error {
				return f.run(ctx)
			}, policy)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				f.logger.Warn("snapshot feed gave up reconnecting", "error", err)
				return
			}
		}
	}()
}

// Stop disconnects the feed and waits for the reader to exit.
func (f *SnapshotFeed) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done
}

func (f *SnapshotFeed) run(ctx context.Context) error {
	header := map[string][]string{}
	if f.token != "" {
		header["Authorization"] = []string{"Bearer " + f.token}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, header)
	if err != nil {
		return fmt.Errorf("backend: snapshot feed dial %s: %w", f.url, err)
	}
	defer conn.Close()

	f.logger.Info("snapshot feed connected", "url", f.url)

	// Unblock ReadMessage when the context is cancelled.
	readerDone := make(chan struct{})
	defer close(readerDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
			conn.Close()
		case <-readerDone:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("backend: snapshot feed read: %w", err)
		}

		var data UserData
		if err := json.Unmarshal(payload, &data); err != nil {
			f.logger.Warn("dropping malformed snapshot push", "error", err)
			continue
		}
		f.sink(data)
	}
}
