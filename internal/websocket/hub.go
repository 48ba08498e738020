package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/lensa/adapters/microphone"
	"github.com/satriahrh/lensa/domain/entities"
	"github.com/satriahrh/lensa/domain/repositories"
	"github.com/satriahrh/lensa/internal/pipeline"
	"github.com/satriahrh/lensa/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	// Size of the binary MP3 chunks sent while speaking.
	audioChunkSize = 16 * 1024

	// Upper bound for answering one voice query.
	queryTimeout = 2 * time.Minute

	// Frames buffered between the socket and the recognizer.
	micBuffer = 64
)

// Hub maintains the set of active clients and routes session events to them.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed once Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	conversation *usecase.ConversationService
	upgrader     websocket.Upgrader
	logger       *zap.Logger
}

// NewHub creates a new WebSocket hub. An empty allowedOrigins list, or one containing "*", accepts any origin.
func NewHub(conversation *usecase.ConversationService, allowedOrigins []string, logger *zap.Logger) *Hub {
	h := &Hub{
		clients:      make(map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		done:         make(chan struct{}),
		conversation: conversation,
		logger:       logger,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     originChecker(allowedOrigins),
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	hosts := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		hosts[origin] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(hosts) == 0 {
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		}
		return hosts[origin]
	}
}

// Run starts the hub's main loop. It returns when ctx is done, disconnecting every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("sessionID", client.sessionID))

		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client)
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("sessionID", client.sessionID))

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.cancel()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket hub stopped")
			return
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishProgress forwards a pipeline event to every connection of the session.
// Slow clients miss events rather than block the pipeline.
func (h *Hub) PublishProgress(sessionID string, event pipeline.Event) {
	payload, err := json.Marshal(CreateProgressMessage(event))
	if err != nil {
		h.logger.Error("Failed to marshal progress message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.sessionID != sessionID {
			continue
		}
		select {
		case client.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		default:
			h.logger.Warn("Dropping progress event for slow client", zap.String("sessionID", sessionID))
		}
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Never closed; writers select on ctx.
	send chan WriteData

	// Session bound by the cookie at upgrade time
	sessionID string

	logger    *zap.Logger
	validator *MessageValidator

	// Lifetime of the connection
	ctx    context.Context
	cancel context.CancelFunc

	// The utterance being answered, nil while idle
	mic        *microphone.Live
	chunkCount int
	mutex      sync.Mutex
}

// HandleWebSocket upgrades the request and serves the session's voice queries on it.
func HandleWebSocket(hub *Hub, c echo.Context, sessionID string) error {
	conn, err := hub.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, 256),
		sessionID: sessionID,
		logger:    hub.logger.With(zap.String("sessionID", sessionID)),
		validator: NewMessageValidator(),
		ctx:       ctx,
		cancel:    cancel,
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		cancel()
		conn.Close()
		return errors.New("websocket hub is not running")
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the client handlers.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.abortUtterance(context.Canceled)
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the send queue to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				c.cancel()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// enqueue hands data to writePump; it reports false once the connection is gone
func (c *Client) enqueue(data WriteData) bool {
	select {
	case c.send <- data:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Client) sendJSON(v interface{}) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return false
	}
	return c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

func (c *Client) sendError(code, message, details string) {
	c.sendJSON(CreateErrorMessage(code, message, details))
}

// processMessage dispatches control messages from the browser
func (c *Client) processMessage(message []byte) {
	parsed, err := c.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.sendError(ErrorCodeInvalidMessage, "invalid message", err.Error())
		return
	}

	switch msg := parsed.(type) {
	case *ListeningStartMessage:
		c.handleListeningStart(msg)
	case *ListeningEndMessage:
		c.handleListeningEnd()
	case *PingMessage:
		c.sendJSON(CreatePongMessage(msg.Data))
	}
}

// processBinaryAudioChunk feeds one audio frame to the active utterance
func (c *Client) processBinaryAudioChunk(data []byte) {
	c.mutex.Lock()
	mic := c.mic
	if mic != nil {
		c.chunkCount++
	}
	c.mutex.Unlock()

	if mic == nil {
		c.logger.Warn("Received binary audio chunk but not listening", zap.Int("size", len(data)))
		return
	}

	if err := mic.Push(c.ctx, data); err != nil {
		c.logger.Debug("Dropped audio chunk", zap.Int("size", len(data)), zap.Error(err))
	}
}

// handleListeningStart opens a live microphone and answers the utterance in the background
func (c *Client) handleListeningStart(msg *ListeningStartMessage) {
	c.mutex.Lock()
	if c.mic != nil {
		c.mutex.Unlock()
		c.sendError(ErrorCodeBusy, "a voice query is already in progress", "")
		return
	}

	mic := microphone.NewLive(repositories.AudioConfig{
		SampleRate: msg.SampleRate,
		Encoding:   msg.Encoding,
		Language:   msg.Language,
	}, micBuffer)
	c.mic = mic
	c.chunkCount = 0
	c.mutex.Unlock()

	c.logger.Info("Listening started",
		zap.String("encoding", msg.Encoding),
		zap.Int("sampleRate", msg.SampleRate),
		zap.String("language", msg.Language))

	c.sendJSON(&ListeningStartedMessage{
		BaseMessage: newBase(MessageTypeListeningStarted),
		SessionID:   c.sessionID,
	})

	go c.answer(mic)
}

// handleListeningEnd marks end-of-utterance; the answer keeps running until the reply is sent
func (c *Client) handleListeningEnd() {
	c.mutex.Lock()
	mic := c.mic
	chunks := c.chunkCount
	c.mutex.Unlock()

	if mic == nil {
		c.logger.Debug("Listening end without active utterance")
		return
	}

	c.logger.Info("Listening ended", zap.Int("chunks", chunks))
	mic.Close()
}

func (c *Client) abortUtterance(err error) {
	c.mutex.Lock()
	mic := c.mic
	c.mutex.Unlock()
	if mic != nil {
		mic.Abort(err)
	}
}

// answer runs one voice query and streams the reply back
func (c *Client) answer(mic *microphone.Live) {
	defer func() {
		mic.Abort(nil)
		c.mutex.Lock()
		if c.mic == mic {
			c.mic = nil
		}
		c.mutex.Unlock()
	}()

	ctx, cancel := context.WithTimeout(c.ctx, queryTimeout)
	defer cancel()

	reply, err := c.hub.conversation.AskObserved(ctx, c.sessionID, mic, func(r *entities.Recognition) {
		c.sendJSON(CreateRecognitionMessage(r))
	})
	if err != nil {
		c.reportError(err)
		return
	}

	if reply.Audio == nil {
		return
	}

	data := reply.Audio.Bytes()
	c.logger.Info("Speaking",
		zap.String("response", reply.ResponseText),
		zap.String("audioSize", humanize.Bytes(uint64(len(data)))))

	if !c.sendJSON(&SpeakingStartMessage{
		BaseMessage: newBase(MessageTypeSpeakingStart),
		Text:        reply.ResponseText,
		MimeType:    reply.Audio.MIMEType(),
		Size:        len(data),
	}) {
		return
	}
	for _, chunk := range reply.Audio.Chunks(audioChunkSize) {
		if !c.enqueue(WriteData{Type: websocket.BinaryMessage, Payload: chunk}) {
			return
		}
	}
	c.sendJSON(&SpeakingEndMessage{BaseMessage: newBase(MessageTypeSpeakingEnd)})
}

func (c *Client) reportError(err error) {
	switch {
	case errors.Is(err, entities.ErrNoCaption):
		c.sendError(ErrorCodeNoCaption, err.Error(), "")
	case errors.Is(err, entities.ErrSessionNotFound):
		c.sendError(ErrorCodeSessionExpired, "session expired, reload the page", "")
	case c.ctx.Err() != nil:
		// connection gone, nobody to tell
	default:
		c.logger.Error("Voice query failed", zap.Error(err))
		c.sendError(ErrorCodeUpstream, "failed to answer the voice query", err.Error())
	}
}
