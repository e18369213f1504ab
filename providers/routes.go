package providers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/matchrelay/src/auth"
	"github.com/valyala/fasthttp"
)

// AdminKeyHeader carries the operator key for administrative routes.
const AdminKeyHeader = "X-Relay-Admin-Key"

const wsPath = "/ws"

// RegisterRoutes registers the relay's HTTP routes via Fiber.
// The actual WebSocket upgrade uses FastHTTPHandler, registered
// at the server level since Fiber v3 does not expose *fasthttp.RequestCtx.
func (p *RelayPlugin) RegisterRoutes(group fiber.Router) {
	group.Get("/healthz", p.handleHealth)
	group.Get("/ws/info", p.handleInfo)
	// Per-user routes reveal who is online and which matches they have
	// open, so they exist only behind the admin key.
	if p.cfg.AdminKey != "" {
		group.Get("/ws/users/:id", p.handleUserStatus)
		group.Delete("/ws/users/:id", p.handleKick)
	}
}

func (p *RelayPlugin) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleInfo reports aggregate counts. Match IDs are only listed for
// callers holding the admin key.
func (p *RelayPlugin) handleInfo(c fiber.Ctx) error {
	stats := p.service.Stats()
	body := fiber.Map{
		"websocket":   true,
		"endpoint":    stats.Endpoint,
		"connections": stats.Connections,
		"onlineUsers": stats.OnlineUsers,
		"activeRooms": len(stats.Rooms),
	}
	if p.isAdmin(c) {
		body["rooms"] = stats.Rooms
	}
	return c.JSON(body)
}

func (p *RelayPlugin) handleUserStatus(c fiber.Ctx) error {
	if !p.isAdmin(c) {
		return unauthorized(c)
	}
	return c.JSON(p.service.GetUserStatus(c.Params("id")))
}

func (p *RelayPlugin) handleKick(c fiber.Ctx) error {
	if !p.isAdmin(c) {
		return unauthorized(c)
	}
	userID := c.Params("id")
	if err := p.service.Disconnect(userID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "not_connected",
			"message": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"userId": userID, "disconnected": true})
}

func unauthorized(c fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":   "unauthorized",
		"message": "admin key required",
	})
}

func (p *RelayPlugin) isAdmin(c fiber.Ctx) bool {
	if p.cfg.AdminKey == "" {
		return false
	}
	key := c.Get(AdminKeyHeader)
	return subtle.ConstantTimeCompare([]byte(key), []byte(p.cfg.AdminKey)) == 1
}

// Handler returns the server's root handler: WebSocket upgrades on /ws, and
// everything else through the Fiber app.
func (p *RelayPlugin) Handler(app *fiber.App) fasthttp.RequestHandler {
	ws := p.FastHTTPHandler()
	rest := app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == wsPath {
			ws(ctx)
			return
		}
		rest(ctx)
	}
}

// FastHTTPHandler returns a raw fasthttp handler for WebSocket upgrades.
// The token is verified before upgrading so rejected clients get a plain
// HTTP status.
func (p *RelayPlugin) FastHTTPHandler() fasthttp.RequestHandler {
	upgrader := websocket.FastHTTPUpgrader{
		ReadBufferSize:  p.cfg.ReadBufferSize,
		WriteBufferSize: p.cfg.WriteBufferSize,
		CheckOrigin: func(ctx *fasthttp.RequestCtx) bool {
			return p.cfg.OriginAllowed(string(ctx.Request.Header.Peek(fasthttp.HeaderOrigin)))
		},
	}

	return func(ctx *fasthttp.RequestCtx) {
		if !websocket.FastHTTPIsWebSocketUpgrade(ctx) {
			writeError(ctx, fasthttp.StatusUpgradeRequired, "upgrade_required", "WebSocket upgrade required")
			return
		}
		if !upgrader.CheckOrigin(ctx) {
			writeError(ctx, fasthttp.StatusForbidden, "forbidden", "origin not allowed")
			return
		}

		token := string(ctx.QueryArgs().Peek("token"))
		if token == "" {
			token = auth.BearerToken(string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization)))
		}
		// The hub bounds verification with its own timeout. The request
		// context is owned by the server and must not leak into it.
		userID, err := p.hub.Authenticate(context.Background(), token)
		if err != nil {
			p.logger.Warn().Err(err).Str("remote_addr", ctx.RemoteAddr().String()).Msg("handshake rejected")
			writeError(ctx, fasthttp.StatusUnauthorized, "unauthorized", "Authentication error")
			return
		}

		h := p.hub
		cfg := p.cfg
		err = upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			client, err := h.Connect(userID, newFasthttpConn(conn, cfg.MaxMessageSize, cfg.PingIntervalDuration(), cfg.WriteTimeoutDuration()))
			if err != nil {
				_ = conn.Close()
				return
			}
			h.Serve(client)
		})
		if err != nil {
			p.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

func writeError(ctx *fasthttp.RequestCtx, status int, code, message string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType(fiber.MIMEApplicationJSON)
	ctx.SetBodyString(`{"error":"` + code + `","message":"` + message + `"}`)
}

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn and
// types.Pinger. Reads and writes carry deadlines; a pong extends the read
// deadline.
type fasthttpConn struct {
	conn         *websocket.Conn
	pongWait     time.Duration
	writeTimeout time.Duration
}

func newFasthttpConn(conn *websocket.Conn, readLimit int, pingInterval, writeTimeout time.Duration) *fasthttpConn {
	f := &fasthttpConn{conn: conn, writeTimeout: writeTimeout}
	if readLimit > 0 {
		conn.SetReadLimit(int64(readLimit))
	}
	if pingInterval > 0 {
		f.pongWait = 2 * pingInterval
		_ = conn.SetReadDeadline(time.Now().Add(f.pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(f.pongWait))
		})
	}
	return f
}

func (f *fasthttpConn) WriteJSON(v any) error {
	if f.writeTimeout > 0 {
		_ = f.conn.SetWriteDeadline(time.Now().Add(f.writeTimeout))
	}
	return f.conn.WriteJSON(v)
}

// ReadJSON reads one whole frame before decoding it, so an empty or
// truncated frame surfaces as a *json.SyntaxError rather than an EOF.
func (f *fasthttpConn) ReadJSON(v any) error {
	_, data, err := f.conn.ReadMessage()
	if err != nil {
		return err
	}
	if f.pongWait > 0 {
		_ = f.conn.SetReadDeadline(time.Now().Add(f.pongWait))
	}
	return json.Unmarshal(data, v)
}

func (f *fasthttpConn) Ping() error {
	deadline := time.Now().Add(f.writeTimeout)
	if f.writeTimeout <= 0 {
		deadline = time.Time{}
	}
	return f.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (f *fasthttpConn) Close() error { return f.conn.Close() }
