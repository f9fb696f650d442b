package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotFeed_DeliversPushes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		payload, _ := json.Marshal(UserData{Username: "ada", Currency: 7})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

		// Malformed frame must be dropped, not kill the feed.
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))

		payload, _ = json.Marshal(UserData{Username: "ada", Currency: 9})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

		// Keep the connection open until the client goes away.
		conn.ReadMessage()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	got := make(chan UserData, 4)
	feed := NewSnapshotFeed(wsURL, "", func(d UserData) { got <- d }, log.New(io.Discard))

	feed.Start(context.Background())
	defer feed.Stop()

	first := <-got
	assert.Equal(t, 7, first.Currency)

	select {
	case second := <-got:
		assert.Equal(t, 9, second.Currency)
	case <-time.After(2 * time.Second):
		t.Fatal("second snapshot not delivered")
	}
}
