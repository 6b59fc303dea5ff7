package session

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dotsetgreg/jarvisctl/pkg/backend"
	"github.com/dotsetgreg/jarvisctl/pkg/bus"
)

func TestGatewayRepliesToInbound(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t,
		`data: {"type":"response","response":"gateway answer","conversation_id":""}`,
		`data: [DONE]`,
	))
	defer srv.Close()

	st := testStore(t)
	mb := bus.NewMessageBus()
	defer mb.Close()

	client := backend.NewClient(srv.URL, "", 5*time.Second)
	g := NewGateway(client, st, mb, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	mb.PublishInbound(bus.InboundMessage{
		Channel:  "discord",
		SenderID: "user-1",
		ChatID:   "chan-1",
		Content:  "hello from discord",
	})

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	out, ok := mb.SubscribeOutbound(waitCtx)
	if !ok {
		t.Fatalf("no outbound reply")
	}
	if out.Channel != "discord" || out.ChatID != "chan-1" || out.Content != "gateway answer" {
		t.Fatalf("unexpected outbound: %+v", out)
	}

	// Gateway controllers are detached from the terminal session's state.
	if st.ActiveConversationID() != "" {
		t.Fatalf("gateway turn must not touch the active client state")
	}
	if rec, found := st.Conversation("discord:chan-1"); !found || len(rec.Messages) != 2 {
		t.Fatalf("expected per-chat conversation archived, got %+v found=%v", rec, found)
	}
}

func TestGatewayReusesControllerPerChat(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t, `data: [DONE]`))
	defer srv.Close()

	st := testStore(t)
	mb := bus.NewMessageBus()
	defer mb.Close()

	client := backend.NewClient(srv.URL, "", 5*time.Second)
	g := NewGateway(client, st, mb, testOptions())

	first, err := g.controllerFor("discord", "chan-1")
	if err != nil {
		t.Fatalf("controllerFor: %v", err)
	}
	again, err := g.controllerFor("discord", "chan-1")
	if err != nil {
		t.Fatalf("controllerFor: %v", err)
	}
	if first != again {
		t.Fatalf("expected controller reuse for the same chat")
	}

	other, err := g.controllerFor("discord", "chan-2")
	if err != nil {
		t.Fatalf("controllerFor: %v", err)
	}
	if other == first {
		t.Fatalf("expected distinct controllers per chat")
	}
	if other.ConversationID() != "discord:chan-2" {
		t.Fatalf("unexpected pinned conversation id %q", other.ConversationID())
	}
}
