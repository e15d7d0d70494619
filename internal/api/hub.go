package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/char5742/keyball-axis-clamper/internal/clamper"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// envelope はWebSocketで送るメッセージの形式
type envelope struct {
	Type string    `json:"type"`
	Ts   time.Time `json:"ts"`
	Data any       `json:"data,omitempty"`
}

// Hub はWebSocketクライアントにロック状態の変化を配信する
type Hub struct {
	broadcast  chan []byte
	unregister chan *wsClient

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	stopped bool

	sendBuf  int
	upgrader websocket.Upgrader
	logger   *log.Entry
}

type wsClient struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
}

// NewHub はHubを作成する。Run(ctx)で配信を開始する
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 128),
		unregister: make(chan *wsClient, 16),
		clients:    make(map[*wsClient]struct{}),
		sendBuf:    32,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: log.WithField("component", "ws_hub"),
	}
}

// Run はctxが終了するまでクライアントの登録解除と配信を処理する
// 終了後に接続してきたクライアントは受け付けずに切断する
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// 追いつけないクライアントは切断する
					delete(h.clients, c)
					close(c.send)
					h.logger.WithField("remote_addr", c.remoteAddr).Warn("送信が詰まったクライアントを切断します")
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// add はクライアントを登録する。Runが終了した後はfalseを返す
func (h *Hub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.WithFields(log.Fields{"remote_addr": c.remoteAddr, "clients": len(h.clients)}).Info("WebSocketクライアントが接続しました")
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// PublishTransition はロック状態の変化を配信キューに積む
// キューが満杯の場合は破棄する（呼び出し元をブロックしない）
func (h *Hub) PublishTransition(t clamper.Transition) {
	msg, err := json.Marshal(envelope{Type: "lock_changed", Ts: t.At, Data: t})
	if err != nil {
		h.logger.WithError(err).Warn("メッセージのエンコードに失敗しました")
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Debug("配信キューが満杯のため破棄しました")
	}
}

// ServeWS はWebSocket接続を受け付け、最初に現在の状態を送る
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, snapshot clamper.Snapshot) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocketへのアップグレードに失敗しました")
		return
	}

	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, h.sendBuf), remoteAddr: r.RemoteAddr}
	if init, err := json.Marshal(envelope{Type: "state_init", Ts: time.Now(), Data: snapshot}); err == nil {
		c.send <- init
	}
	if !h.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(wsWriteWait))
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump は切断を検知するためだけに受信を続ける
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		default:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
