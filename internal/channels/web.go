package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pearl-assistant/pearl/internal/bus"
	"github.com/pearl-assistant/pearl/internal/config"
	"github.com/pearl-assistant/pearl/internal/schema"
)

// webFrame is the wire format spoken with browser and voice front-ends.
type webFrame struct {
	Type   string `json:"type"` // "message" inbound, "reply" outbound
	UserID string `json:"userId,omitempty"`
	ChatID string `json:"chatId,omitempty"`
	Text   string `json:"text,omitempty"`
}

// WebChannel serves WebSocket connections for browser and voice front-ends.
// Each connection is one chat; replies are routed back over the same socket.
type WebChannel struct {
	Base
	cfg      *config.WebConfig
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*websocket.Conn // chatID → socket
}

func NewWebChannel(cfg *config.WebConfig, b *bus.MessageBus) *WebChannel {
	return &WebChannel{
		Base:  NewBase(schema.ChannelWeb, b, cfg.AllowFrom),
		cfg:   cfg,
		conns: make(map[string]*websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (w *WebChannel) Name() schema.Channel { return schema.ChannelWeb }

func (w *WebChannel) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", w.cfg.Host, w.cfg.Port)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", w.handleWS)

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	slog.Info("web: listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web: serve: %w", err)
	}
	return ctx.Err()
}

func (w *WebChannel) handleWS(rw http.ResponseWriter, r *http.Request) {
	if w.cfg.AuthToken != "" && r.URL.Query().Get("token") != w.cfg.AuthToken {
		http.Error(rw, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		slog.Warn("web: upgrade failed", "err", err)
		return
	}
	go w.readLoop(conn)
}

func (w *WebChannel) readLoop(conn *websocket.Conn) {
	var chatID string
	defer func() {
		conn.Close()
		if chatID != "" {
			w.mu.Lock()
			if w.conns[chatID] == conn {
				delete(w.conns, chatID)
			}
			w.mu.Unlock()
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame webFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			slog.Debug("web: malformed frame", "err", err)
			continue
		}
		if frame.Type != "message" || frame.UserID == "" || frame.Text == "" {
			continue
		}
		if frame.ChatID == "" {
			frame.ChatID = frame.UserID
		}

		w.mu.Lock()
		chatID = frame.ChatID
		w.conns[chatID] = conn
		w.mu.Unlock()

		w.HandleMessage(frame.UserID, frame.ChatID, frame.Text, nil)
	}
}

func (w *WebChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	w.mu.Lock()
	conn := w.conns[msg.ChatID]
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("web: no connection for chat %s", msg.ChatID)
	}

	raw, err := json.Marshal(webFrame{Type: "reply", ChatID: msg.ChatID, Text: msg.Content})
	if err != nil {
		return fmt.Errorf("web: encode reply: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("web: write reply: %w", err)
	}
	return nil
}
