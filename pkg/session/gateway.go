package session

import (
	"context"
	"errors"
	"sync"

	"github.com/dotsetgreg/jarvisctl/pkg/backend"
	"github.com/dotsetgreg/jarvisctl/pkg/bus"
	"github.com/dotsetgreg/jarvisctl/pkg/chat"
	"github.com/dotsetgreg/jarvisctl/pkg/logger"
	"github.com/dotsetgreg/jarvisctl/pkg/store"
)

const busyReply = "Still working on your previous message, one moment."

// Gateway bridges channel adapters to the backend. Each remote chat
// gets its own detached controller pinned to a per-chat conversation,
// so gateway traffic never disturbs the terminal session's state.
type Gateway struct {
	client *backend.Client
	store  *store.Store
	bus    *bus.MessageBus
	opts   Options

	mu          sync.Mutex
	controllers map[string]*Controller
}

func NewGateway(client *backend.Client, st *store.Store, messageBus *bus.MessageBus, opts Options) *Gateway {
	opts.DetachedState = true
	return &Gateway{
		client:      client,
		store:       st,
		bus:         messageBus,
		opts:        opts,
		controllers: make(map[string]*Controller),
	}
}

// Run consumes inbound messages until ctx is cancelled or the bus is
// closed. Turns run concurrently so a slow answer in one chat does not
// block the others.
func (g *Gateway) Run(ctx context.Context) {
	logger.InfoC("gateway", "Gateway started")

	var wg sync.WaitGroup
	for {
		msg, ok := g.bus.ConsumeInbound(ctx)
		if !ok {
			break
		}

		wg.Add(1)
		go func(msg bus.InboundMessage) {
			defer wg.Done()
			g.handleInbound(ctx, msg)
		}(msg)
	}

	wg.Wait()
	logger.InfoC("gateway", "Gateway stopped")
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	ctrl, err := g.controllerFor(msg.Channel, msg.ChatID)
	if err != nil {
		logger.ErrorCF("gateway", "Failed to build controller", map[string]interface{}{
			"channel": msg.Channel,
			"chat_id": msg.ChatID,
			"error":   err.Error(),
		})
		return
	}

	reply, err := ctrl.Send(ctx, msg.Content, nil)
	switch {
	case errors.Is(err, chat.ErrRequestInFlight):
		g.reply(msg, busyReply)
		return
	case errors.Is(err, chat.ErrEmptyMessage):
		return
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		logger.ErrorCF("gateway", "Turn failed", map[string]interface{}{
			"channel": msg.Channel,
			"chat_id": msg.ChatID,
			"error":   err.Error(),
		})
		g.reply(msg, failureText)
		return
	}

	if reply.Text == "" {
		return
	}
	g.reply(msg, reply.Text)
}

func (g *Gateway) reply(msg bus.InboundMessage, content string) {
	g.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: content,
	})
}

func (g *Gateway) controllerFor(channel, chatID string) (*Controller, error) {
	key := channel + ":" + chatID

	g.mu.Lock()
	defer g.mu.Unlock()

	if ctrl, ok := g.controllers[key]; ok {
		return ctrl, nil
	}

	opts := g.opts
	opts.ConversationID = key
	ctrl, err := New(g.client, g.store, opts)
	if err != nil {
		return nil, err
	}
	g.controllers[key] = ctrl
	return ctrl, nil
}
