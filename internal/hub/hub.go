// Package hub is the notification-delivery side of the backend: it keeps the
// registry of per-participant channels, lets websocket clients attach to them
// by token, and fans payloads out to whoever is attached. Channel ids and
// tokens are minted by the game lifecycle and registered here once they are
// committed. Delivery is best effort; the state machine never learns whether
// a payload arrived.
package hub

import (
	"context"

	"go.uber.org/zap"
)

type hubMsg interface{ isHubMsg() }

type register struct {
	ChannelID string
	Token     string
}

type attach struct {
	Token  string
	Outbox chan []byte
	Reply  chan string // channel id, "" if the token is unknown
}

type detach struct {
	ChannelID string
	Outbox    chan []byte
}

type send struct {
	ChannelID string
	Payload   []byte
}

type shutdown struct{}

func (register) isHubMsg() {}
func (attach) isHubMsg()   {}
func (detach) isHubMsg()        {}
func (send) isHubMsg()          {}
func (shutdown) isHubMsg()      {}

type channel struct {
	token  string
	outbox chan []byte // nil until a client attaches
}

type Hub struct {
	inbox    chan hubMsg
	channels map[string]*channel // channel id -> channel
	tokens   map[string]string   // token -> channel id
	ctx      context.Context
	cancel   context.CancelFunc
	log      *zap.Logger
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan hubMsg, 64),
		channels: make(map[string]*channel),
		tokens:   make(map[string]string),
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
	}
	go h.loop()
	return h
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case register:
				ch := h.channels[msg.ChannelID]
				if ch == nil {
					ch = &channel{}
					h.channels[msg.ChannelID] = ch
				}
				if ch.token != msg.Token {
					delete(h.tokens, ch.token)
					ch.token = msg.Token
					h.tokens[msg.Token] = msg.ChannelID
				}

			case attach:
				id, ok := h.tokens[msg.Token]
				if !ok {
					msg.Reply <- ""
					break
				}
				ch := h.channels[id]
				if ch.outbox != nil {
					close(ch.outbox)
				}
				ch.outbox = msg.Outbox
				msg.Reply <- id

			case detach:
				// Only detach the caller's own outbox; a reconnected client
				// may have attached a fresh one in the meantime.
				if ch := h.channels[msg.ChannelID]; ch != nil && ch.outbox == msg.Outbox && ch.outbox != nil {
					close(ch.outbox)
					ch.outbox = nil
				}

			case send:
				ch := h.channels[msg.ChannelID]
				if ch == nil || ch.outbox == nil {
					break
				}
				select {
				case ch.outbox <- msg.Payload:
				default:
					// Client is slow/full - drop the connection, keep the channel.
					h.log.Debug("dropping slow notification client",
						zap.String("channel_id", msg.ChannelID))
					close(ch.outbox)
					ch.outbox = nil
				}

			case shutdown:
				h.closeAll()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) closeAll() {
	for _, ch := range h.channels {
		if ch.outbox != nil {
			close(ch.outbox)
			ch.outbox = nil
		}
	}
}

// Register binds a committed channel id/token pair so clients can attach.
// Idempotent; re-registering after a rejoin or a process restart restores
// the entry from the persisted participant record.
func (h *Hub) Register(channelID, token string) {
	select {
	case h.inbox <- register{ChannelID: channelID, Token: token}:
	case <-h.ctx.Done():
	}
}

// Attach connects a client outbox to the channel the token was minted for.
// Returns the channel id, or false for an unknown token.
func (h *Hub) Attach(token string, outbox chan []byte) (string, bool) {
	reply := make(chan string, 1)
	select {
	case h.inbox <- attach{Token: token, Outbox: outbox, Reply: reply}:
		id := <-reply
		return id, id != ""
	case <-h.ctx.Done():
		return "", false
	}
}

// Detach disconnects the given outbox from the channel, if it is still the
// attached one.
func (h *Hub) Detach(channelID string, outbox chan []byte) {
	select {
	case h.inbox <- detach{ChannelID: channelID, Outbox: outbox}:
	case <-h.ctx.Done():
	}
}

// Notify delivers a payload to the channel's attached client, if any.
// Fire and forget.
func (h *Hub) Notify(channelID string, payload []byte) {
	select {
	case h.inbox <- send{ChannelID: channelID, Payload: payload}:
	case <-h.ctx.Done():
	}
}

// Shutdown closes every attached client and stops the loop.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- shutdown{}:
	case <-h.ctx.Done():
	}
}
