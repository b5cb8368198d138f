package websocket

import (
	"log"
	"time"

	"tapdash/internal/game"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
)

// validate checks inbound payload shapes before they reach the engine.
var validate = validator.New()

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Outbound buffer per client; race_update frames are droppable, so a
	// slow consumer loses ticks rather than stalling the match loop
	sendBufferSize = 256
)

// Client is one live connection bound to exactly one identity.
type Client struct {
	registry *Registry
	engine   *game.Engine
	conn     *websocket.Conn
	identity game.Identity
	send     chan []byte

	superseded chan struct{}
}

// ServeWS runs a fully authenticated connection until it closes. The
// identity was verified at handshake time; nothing unauthenticated gets
// this far.
func ServeWS(registry *Registry, engine *game.Engine, conn *websocket.Conn, identity game.Identity) {
	client := &Client{
		registry:   registry,
		engine:     engine,
		conn:       conn,
		identity:   identity,
		send:       make(chan []byte, sendBufferSize),
		superseded: make(chan struct{}),
	}

	registry.Bind(client)
	engine.HandleConnect(identity)
	log.Printf("✅ User %d (%s) connected (online: %d)", identity.ID, identity.Handle, registry.Count())

	// Write pump in a goroutine, read pump on the caller's goroutine
	// (fiber's websocket handler blocks until the connection is done).
	go client.writePump()
	client.readPump()

	log.Printf("❌ User %d (%s) disconnected (online: %d)", identity.ID, identity.Handle, registry.Count())
}

// closeSuperseded shuts a connection replaced by a newer one for the same
// identity. A normal close, not a disconnect.
func (c *Client) closeSuperseded() {
	close(c.superseded)
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "superseded by a new connection"),
		time.Now().Add(writeWait))
	c.conn.Close()
}

// readPump decodes inbound frames and dispatches them into the engine.
func (c *Client) readPump() {
	defer func() {
		c.registry.Unbind(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("⚠️ WebSocket unexpected close for user %d: %v", c.identity.ID, err)
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch routes one inbound event. Typed rejections go back only to this
// connection; internal faults are logged and surfaced as a generic code.
func (c *Client) dispatch(data []byte) {
	evt, err := game.ParseClientEvent(data)
	if err != nil {
		c.sendError(err)
		return
	}
	if err := validate.Struct(evt); err != nil {
		c.sendError(&game.Error{Code: game.CodeBadPayload, Message: "invalid payload: " + err.Error()})
		return
	}

	switch evt.Type {
	case game.EvtJoinQueue:
		err = c.engine.JoinQueue(c.identity.ID)
	case game.EvtLeaveQueue:
		c.engine.LeaveQueue(c.identity.ID)
	case game.EvtSendChallenge:
		if evt.TargetID == 0 {
			err = &game.Error{Code: game.CodeBadPayload, Message: "send_challenge requires target_id"}
		} else {
			err = c.engine.SendChallenge(c.identity.ID, evt.TargetID)
		}
	case game.EvtAcceptChallenge:
		err = c.challengeOp(evt, c.engine.AcceptChallenge)
	case game.EvtDeclineChallenge:
		err = c.challengeOp(evt, c.engine.DeclineChallenge)
	case game.EvtCancelChallenge:
		err = c.challengeOp(evt, c.engine.CancelChallenge)
	case game.EvtTap:
		err = c.engine.Tap(c.identity.ID, evt.MatchID, evt.ClientTS)
	default:
		err = &game.Error{Code: game.CodeBadPayload, Message: "unknown event type: " + evt.Type}
	}

	if err != nil {
		c.sendError(err)
	}
}

func (c *Client) challengeOp(evt *game.ClientEvent, op func(uint, string) error) error {
	if err := validate.Var(evt.ChallengeID, "required,uuid4"); err != nil {
		return &game.Error{Code: game.CodeBadPayload, Message: evt.Type + " requires a valid challenge_id"}
	}
	return op(c.identity.ID, evt.ChallengeID)
}

func (c *Client) sendError(err error) {
	ge, ok := game.AsGameError(err)
	if !ok {
		log.Printf("❌ Internal error for user %d: %v", c.identity.ID, err)
		ge = &game.Error{Code: game.CodeInternal, Message: "something went wrong, try again"}
	}
	c.registry.Send(c.identity.ID, game.NewErrorEvent(ge))
}

// writePump pumps queued frames to the connection.
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.superseded:
			return
		}
	}
}
