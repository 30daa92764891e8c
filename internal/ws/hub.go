package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"socialfeed/internal/metrics"

	"github.com/rs/zerolog/log"
)

// GroupPosts 是全局唯一的广播组，所有连接都加入该组。
const GroupPosts = "posts"

// Hub 维护 posts 组内的全部在线连接。订阅集合只由 run 协程读写，
// 注册、注销和广播都通过 channel 串行化。
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	stopped    chan struct{}
	closeOnce  sync.Once
	online     atomic.Int32
}

// NewHub 创建并启动 Hub，进程退出前需调用 Close。
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.stopped)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.online.Store(int32(len(h.clients)))
			metrics.WsConnections.Inc()
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.broadcast:
			h.fanout(msg)
		case <-h.done:
			h.drain()
			for c := range h.clients {
				h.remove(c)
			}
			return
		}
	}
}

// fanout 向每个连接做非阻塞投递，发送缓冲已满的连接视为断开并移除，
// 不影响其余连接。
func (h *Hub) fanout(msg []byte) {
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			log.Warn().Str("conn_id", c.id).Msg("ws send buffer full, dropping connection")
			metrics.BroadcastDropped.Inc()
			h.remove(c)
		}
	}
}

// drain 在关闭前投递已入队的广播。
func (h *Hub) drain() {
	for {
		select {
		case msg := <-h.broadcast:
			h.fanout(msg)
		default:
			return
		}
	}
}

// remove 对未注册或已移除的连接是空操作。
func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.online.Store(int32(len(h.clients)))
	metrics.WsConnections.Dec()
}

// Register 把连接加入 posts 组；Hub 已关闭时返回 false。
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister 可以安全地对从未注册成功的连接调用。
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish 把事件排入广播队列后立即返回，不等待任何连接投递完成，也不返回错误。
func (h *Hub) Publish(evt Event) {
	b, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("message", evt.Message).Msg("marshal event")
		return
	}
	select {
	case h.broadcast <- b:
		metrics.BroadcastEventsTotal.WithLabelValues(metricLabel(evt.Message)).Inc()
	case <-h.done:
	}
}

// metricLabel 把客户端转发的任意 message 归为 relay。
func metricLabel(message string) string {
	switch message {
	case MessageNewPost, MessageNewComment, MessageLikeUpdate, MessagePostDeleted:
		return message
	}
	return "relay"
}

// Online 返回当前在线连接数。
func (h *Hub) Online() int { return int(h.online.Load()) }

// Close 投递完已排队的事件后关闭全部连接，可重复调用。
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
	<-h.stopped
}
