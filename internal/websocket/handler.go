package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// AccountResolver returns the authenticated account of a request.
type AccountResolver func(r *http.Request) (int64, bool)

// HandleWebSocket returns an HTTP handler that upgrades authenticated
// connections to WebSocket and runs them as Hub clients.
func HandleWebSocket(hub *Hub, resolve AccountResolver, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := resolve(r)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			logger.Warn("websocket accept failed", "error", err)
			return
		}

		client := NewClient(hub, conn, accountID)
		logger.Debug("websocket connected", "client_id", client.ID(), "account_id", accountID)
		client.Run(r.Context())
		conn.Close(ws.StatusNormalClosure, "")
		logger.Debug("websocket disconnected", "client_id", client.ID(), "account_id", accountID)
	}
}
