// Jarvisctl - Terminal client for the Jarvis assistant backend
// License: MIT
//
// Copyright (c) 2026 Jarvisctl contributors

package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// InboundMessage is a user message arriving from a channel adapter.
type InboundMessage struct {
	Channel  string
	SenderID string
	ChatID   string
	Content  string
	Metadata map[string]string
}

// OutboundMessage is an assistant reply heading back to a channel.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
}

const (
	bufferSize     = 100
	publishTimeout = 100 * time.Millisecond
)

// MessageBus carries gateway traffic between channel adapters and the
// session layer. Publishing never blocks longer than publishTimeout;
// overflow is counted, not delivered.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	mu     sync.RWMutex
	closed bool

	droppedIn  atomic.Uint64
	droppedOut atomic.Uint64
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, bufferSize),
		outbound: make(chan OutboundMessage, bufferSize),
	}
}

func offer[T any](ch chan T, msg T, dropped *atomic.Uint64) {
	select {
	case ch <- msg:
		return
	default:
	}
	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case ch <- msg:
	case <-timer.C:
		dropped.Add(1)
	}
}

func take[T any](ctx context.Context, ch chan T) (T, bool) {
	var zero T
	select {
	case msg, ok := <-ch:
		if !ok {
			return zero, false
		}
		return msg, true
	case <-ctx.Done():
		return zero, false
	}
}

func (mb *MessageBus) PublishInbound(msg InboundMessage) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}
	offer(mb.inbound, msg, &mb.droppedIn)
}

func (mb *MessageBus) PublishOutbound(msg OutboundMessage) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}
	offer(mb.outbound, msg, &mb.droppedOut)
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	return take(ctx, mb.inbound)
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	return take(ctx, mb.outbound)
}

func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound)
	close(mb.outbound)
}

func (mb *MessageBus) DroppedInbound() uint64  { return mb.droppedIn.Load() }
func (mb *MessageBus) DroppedOutbound() uint64 { return mb.droppedOut.Load() }
