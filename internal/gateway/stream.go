package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// handleStatsStream upgrades to a WebSocket and pushes an executor stats
// snapshot every StreamInterval until the client goes away.
func (g *Gateway) handleStatsStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.exec == nil {
			http.Error(w, "executor not available", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("stats stream accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()
		defer g.metrics.StreamOpened()()

		// The stream is write-only; CloseRead handles control frames and
		// cancels ctx once the client closes.
		ctx := conn.CloseRead(r.Context())

		ticker := time.NewTicker(g.config.StreamInterval)
		defer ticker.Stop()
		for {
			if err := g.pushStats(ctx, conn); err != nil {
				if !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) == -1 {
					g.logger.Debug("stats stream ended", "error", err)
				}
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

func (g *Gateway) pushStats(ctx context.Context, conn *websocket.Conn) error {
	data, err := json.Marshal(g.exec.Stats())
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, g.config.WriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
