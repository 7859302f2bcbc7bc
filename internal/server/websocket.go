package server

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.allowedOrigins(),
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade error")
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	select {
	case s.register <- client:
	case <-s.hubDone:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go client.writePump()
	go client.readPump()
}

// allowedOrigins lists the host:port pairs a browser page served by this
// server can present as its origin.
func (s *Server) allowedOrigins() []string {
	port := s.opts.Port
	if _, p, err := net.SplitHostPort(s.Addr()); err == nil {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	suffix := ":" + strconv.Itoa(port)

	origins := []string{"localhost" + suffix, "127.0.0.1" + suffix}
	if s.opts.Host != "" && s.opts.Host != "localhost" && s.opts.Host != "127.0.0.1" {
		origins = append(origins, s.opts.Host+suffix)
	}
	return origins
}

// checkOrigin validates the request origin for security
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	for _, allowed := range s.allowedOrigins() {
		if originURL.Host == allowed {
			return true
		}
	}

	return false
}

func (s *Server) runWebSocketHub(ctx context.Context) {
	defer close(s.hubDone)

	for {
		select {
		case <-ctx.Done():
			s.clientsMutex.Lock()
			// Closing send makes each writePump close its connection.
			for _, client := range s.clients {
				close(client.send)
			}
			s.clients = make(map[*websocket.Conn]*Client)
			s.clientsMutex.Unlock()
			s.recorder.SetLiveReloadClients(0)
			return

		case client := <-s.register:
			s.clientsMutex.Lock()
			s.clients[client.conn] = client
			clientCount := len(s.clients)
			s.clientsMutex.Unlock()
			s.recorder.SetLiveReloadClients(clientCount)
			s.logger.Debug(ctx, "Client connected", "clients", clientCount)

		case conn := <-s.unregister:
			s.removeClients(ctx, conn)

		case message := <-s.broadcast:
			s.clientsMutex.RLock()
			var failedClients []*websocket.Conn
			for conn, client := range s.clients {
				select {
				case client.send <- message:
				default:
					// Client's send channel is full, mark for removal
					failedClients = append(failedClients, conn)
				}
			}
			s.clientsMutex.RUnlock()

			if len(failedClients) > 0 {
				s.removeClients(ctx, failedClients...)
			}
		}
	}
}

func (s *Server) removeClients(ctx context.Context, conns ...*websocket.Conn) {
	s.clientsMutex.Lock()
	for _, conn := range conns {
		if client, ok := s.clients[conn]; ok {
			delete(s.clients, conn)
			close(client.send)
		}
	}
	clientCount := len(s.clients)
	s.clientsMutex.Unlock()

	s.recorder.SetLiveReloadClients(clientCount)
	s.logger.Debug(ctx, "Client disconnected", "clients", clientCount)
}

// readPump consumes frames from the client so control frames are handled,
// and unregisters the client when the connection ends.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c.conn:
		case <-c.server.hubDone:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && status != -1 {
				c.server.logger.Debug(context.Background(), "WebSocket closed", "status", status.String())
			}
			return
		}
	}
}

// writePump pumps messages to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
