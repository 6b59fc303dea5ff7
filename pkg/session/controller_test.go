package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dotsetgreg/jarvisctl/pkg/backend"
	"github.com/dotsetgreg/jarvisctl/pkg/chat"
	"github.com/dotsetgreg/jarvisctl/pkg/store"
)

func writeTestFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "conversations.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testOptions() Options {
	return Options{Mode: "mixed", Model: "balanced", MemoryMode: chat.MemoryShortTerm}
}

func newTestController(t *testing.T, srv *httptest.Server, st *store.Store, opts Options) *Controller {
	t.Helper()
	client := backend.NewClient(srv.URL, "", 5*time.Second)
	c, err := New(client, st, opts)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return c
}

func streamHandler(t *testing.T, lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/stream" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			io.WriteString(w, line+"\n")
		}
	}
}

func TestSendCommitsFullTurn(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t,
		`data: {"type":"status","step":"🔍 Searching 3 documents in knowledge base"}`,
		`data: {"type":"status","step":"🤖 Generating response"}`,
		`data: {"type":"response","response":"Paris.","conversation_id":"conv-7","sources":["doc1.pdf"],"mode_used":"mixed","model_used":"balanced"}`,
		`data: [DONE]`,
	))
	defer srv.Close()

	st := testStore(t)
	c := newTestController(t, srv, st, testOptions())

	var seen []string
	reply, err := c.Send(context.Background(), "capital of France?", func(step string) {
		seen = append(seen, step)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reply.Text != "Paris." || reply.Failed {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if len(reply.Sources) != 1 || reply.Sources[0] != "doc1.pdf" {
		t.Fatalf("unexpected sources: %v", reply.Sources)
	}
	if reply.Mode != "mixed" || reply.Model != "balanced" {
		t.Fatalf("expected mode/model echo on the reply, got %+v", reply)
	}
	if len(reply.Steps) != 2 {
		t.Fatalf("expected 2 frozen steps, got %v", reply.Steps)
	}
	if len(seen) != 2 {
		t.Fatalf("expected live step callbacks, got %v", seen)
	}

	msgs := c.Messages()
	if len(msgs) != 2 || msgs[0].Role != chat.RoleUser || msgs[1].Role != chat.RoleAssistant {
		t.Fatalf("expected one user and one assistant message, got %+v", msgs)
	}
	if c.ConversationID() != "conv-7" {
		t.Fatalf("expected adopted conversation id, got %q", c.ConversationID())
	}
	if c.Phase() != PhaseIdle {
		t.Fatalf("expected idle after commit, got %q", c.Phase())
	}
	if len(c.Progress()) != 0 {
		t.Fatalf("expected progress reset after commit, got %v", c.Progress())
	}

	// Flushed before Send returned.
	if st.ActiveConversationID() != "conv-7" {
		t.Fatalf("active conversation id not persisted")
	}
	if rec, ok := st.Conversation("conv-7"); !ok || len(rec.Messages) != 2 {
		t.Fatalf("conversation archive not persisted: %+v ok=%v", rec, ok)
	}
	// Short-term policy never feeds the long-term aggregate.
	if agg, _ := st.LongTermMessages(); len(agg) != 0 {
		t.Fatalf("short-term turn leaked %d messages into the long-term aggregate", len(agg))
	}
}

func TestSendFoldsAggregateOnlyUnderLongTerm(t *testing.T) {
	lines := []string{
		`data: {"type":"response","response":"noted","conversation_id":"conv-f"}`,
		`data: [DONE]`,
	}

	st := testStore(t)

	srv := httptest.NewServer(streamHandler(t, lines...))
	defer srv.Close()

	for _, mode := range []chat.MemoryMode{chat.MemoryStateless, chat.MemoryShortTerm} {
		opts := testOptions()
		opts.MemoryMode = mode
		c := newTestController(t, srv, st, opts)
		if _, err := c.Send(context.Background(), "remember nothing", nil); err != nil {
			t.Fatalf("send under %s: %v", mode, err)
		}
		if agg, _ := st.LongTermMessages(); len(agg) != 0 {
			t.Fatalf("%s turn leaked %d messages into the long-term aggregate", mode, len(agg))
		}
	}

	opts := testOptions()
	opts.MemoryMode = chat.MemoryLongTerm
	c := newTestController(t, srv, st, opts)
	if _, err := c.Send(context.Background(), "remember this", nil); err != nil {
		t.Fatalf("send under long-term: %v", err)
	}
	if agg, _ := st.LongTermMessages(); len(agg) == 0 {
		t.Fatalf("long-term turn did not grow the aggregate")
	}
}

func TestSendErrorEventOverridesResponse(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t,
		`data: {"type":"response","response":"partial answer","conversation_id":"conv-1"}`,
		`data: {"type":"error","error":"model crashed"}`,
		`data: [DONE]`,
	))
	defer srv.Close()

	c := newTestController(t, srv, testStore(t), testOptions())

	reply, err := c.Send(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reply.Failed || reply.Text != "model crashed" {
		t.Fatalf("expected failed turn with error text, got %+v", reply)
	}
	// Failed turns still join the history.
	if msgs := c.Messages(); len(msgs) != 2 {
		t.Fatalf("expected turn appended, got %d messages", len(msgs))
	}
}

func TestSendEOFWithoutSentinelFails(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t,
		`data: {"type":"status","step":"thinking"}`,
	))
	defer srv.Close()

	c := newTestController(t, srv, testStore(t), testOptions())

	reply, err := c.Send(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reply.Failed || reply.Text != failureText {
		t.Fatalf("expected generic failure, got %+v", reply)
	}
	if len(reply.Steps) != 1 {
		t.Fatalf("expected observed steps frozen onto failed turn, got %v", reply.Steps)
	}
}

func TestSendBareSentinelCommitsEmptyAnswer(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t, `data: [DONE]`))
	defer srv.Close()

	c := newTestController(t, srv, testStore(t), testOptions())

	reply, err := c.Send(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Failed || reply.Text != "" || len(reply.Sources) != 0 {
		t.Fatalf("expected empty successful answer, got %+v", reply)
	}
	if msgs := c.Messages(); len(msgs) != 2 {
		t.Fatalf("expected turn committed, got %d messages", len(msgs))
	}
}

func TestSendFirstConversationIDWins(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t,
		`data: {"type":"status","step":"working","conversation_id":"conv-early"}`,
		`data: {"type":"response","response":"done","conversation_id":"conv-late"}`,
		`data: [DONE]`,
	))
	defer srv.Close()

	st := testStore(t)
	c := newTestController(t, srv, st, testOptions())

	if _, err := c.Send(context.Background(), "hi", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ConversationID() != "conv-early" {
		t.Fatalf("expected first streamed id to stick, got %q", c.ConversationID())
	}
	if st.ActiveConversationID() != "conv-early" {
		t.Fatalf("persisted id drifted to %q", st.ActiveConversationID())
	}
}

func TestSendMalformedLinesContributeNothing(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t,
		`data: {"type":"status","step":"s1"}`,
		`data: {"type":"status","step":`,
		`data: {"type":"status","step":"s2"}`,
		`data: {"type":"response","response":"done","conversation_id":"c1"}`,
		`data: [DONE]`,
	))
	defer srv.Close()

	c := newTestController(t, srv, testStore(t), testOptions())

	reply, err := c.Send(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reply.Steps) != 2 || reply.Steps[0] != "s1" || reply.Steps[1] != "s2" {
		t.Fatalf("malformed line leaked into progress: %v", reply.Steps)
	}
}

func TestSendValidation(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t, `data: [DONE]`))
	defer srv.Close()
	st := testStore(t)

	c := newTestController(t, srv, st, Options{Model: "balanced"})
	if _, err := c.Send(context.Background(), "hi", nil); !errors.Is(err, chat.ErrMissingMode) {
		t.Fatalf("expected ErrMissingMode, got %v", err)
	}

	c = newTestController(t, srv, st, Options{Mode: "mixed"})
	if _, err := c.Send(context.Background(), "hi", nil); !errors.Is(err, chat.ErrMissingModel) {
		t.Fatalf("expected ErrMissingModel, got %v", err)
	}

	c = newTestController(t, srv, st, testOptions())
	if _, err := c.Send(context.Background(), "   ", nil); !errors.Is(err, chat.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}

	// Validation failures never touch the conversation.
	if len(c.Messages()) != 0 {
		t.Fatalf("validation must not touch the conversation")
	}
}

func TestSendRejectsConcurrentRequests(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"type\":\"status\",\"step\":\"working\"}\n")
		w.(http.Flusher).Flush()
		<-release
		io.WriteString(w, "data: [DONE]\n")
	}))
	defer srv.Close()
	defer close(release)

	c := newTestController(t, srv, testStore(t), testOptions())

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.Send(context.Background(), "slow one", nil); err != nil {
			t.Errorf("first send failed: %v", err)
		}
	}()

	// Wait until the first request is demonstrably in flight.
	deadline := time.After(5 * time.Second)
	for len(c.Progress()) == 0 {
		select {
		case <-deadline:
			t.Fatalf("first request never started streaming")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if _, err := c.Send(context.Background(), "second", nil); !errors.Is(err, chat.ErrRequestInFlight) {
		t.Fatalf("expected ErrRequestInFlight, got %v", err)
	}

	release <- struct{}{}
	<-done
}

func TestSendCancellationLeavesConversationUntouched(t *testing.T) {
	started := make(chan struct{})
	hold := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"type\":\"status\",\"step\":\"working\"}\n")
		w.(http.Flusher).Flush()
		close(started)
		<-hold
	}))
	defer srv.Close()
	defer close(hold)

	st := testStore(t)
	c := newTestController(t, srv, st, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := c.Send(ctx, "hi", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(c.Messages()) != 0 {
		t.Fatalf("cancelled turn must not touch the conversation")
	}
	if st.ActiveConversationID() != "" {
		t.Fatalf("cancelled turn must not persist state")
	}
	if c.Phase() != PhaseIdle {
		t.Fatalf("expected idle after cancellation, got %q", c.Phase())
	}
}

func TestSendLongTermContextUsesAggregate(t *testing.T) {
	var gotContext string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req backend.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotContext = req.ConversationContext
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"type\":\"response\",\"response\":\"ok\",\"conversation_id\":\"c1\"}\n")
		io.WriteString(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	st := testStore(t)
	seed := []chat.Message{
		{ID: "m1", Role: chat.RoleUser, Text: "earlier question", CreatedAt: 1},
		{ID: "m2", Role: chat.RoleAssistant, Text: "earlier answer", CreatedAt: 2},
	}
	if err := st.FoldLongTerm("old-conv", seed); err != nil {
		t.Fatalf("seed aggregate: %v", err)
	}

	opts := testOptions()
	opts.MemoryMode = chat.MemoryLongTerm
	c := newTestController(t, srv, st, opts)

	if _, err := c.Send(context.Background(), "follow up", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotContext != "User: earlier question\nAssistant: earlier answer" {
		t.Fatalf("unexpected context: %q", gotContext)
	}
}

func TestControllerRehydratesPersistedState(t *testing.T) {
	st := testStore(t)
	msgs := []chat.Message{chat.NewMessage(chat.RoleUser, "hello")}
	_ = st.SaveActiveConversationID("conv-1")
	_ = st.SaveActiveMessages(msgs)
	_ = st.SaveSessionDocIDs([]string{"doc_1"})

	srv := httptest.NewServer(streamHandler(t, `data: [DONE]`))
	defer srv.Close()

	c := newTestController(t, srv, st, testOptions())
	if c.ConversationID() != "conv-1" {
		t.Fatalf("expected rehydrated conversation id, got %q", c.ConversationID())
	}
	if got := c.Messages(); len(got) != 1 || got[0].Text != "hello" {
		t.Fatalf("expected rehydrated messages, got %+v", got)
	}
	if docs := c.SessionDocIDs(); len(docs) != 1 || docs[0] != "doc_1" {
		t.Fatalf("expected rehydrated docs, got %v", docs)
	}
}

func TestNewConversationClearsState(t *testing.T) {
	st := testStore(t)
	_ = st.SaveActiveConversationID("conv-1")
	_ = st.SaveActiveMessages([]chat.Message{chat.NewMessage(chat.RoleUser, "x")})

	srv := httptest.NewServer(streamHandler(t, `data: [DONE]`))
	defer srv.Close()

	c := newTestController(t, srv, st, testOptions())
	if err := c.NewConversation(); err != nil {
		t.Fatalf("new conversation: %v", err)
	}
	if c.ConversationID() != "" || len(c.Messages()) != 0 {
		t.Fatalf("expected reset controller")
	}
	if st.ActiveConversationID() != "" {
		t.Fatalf("expected cleared client state")
	}
}

func TestOpenConversationLoadsArchive(t *testing.T) {
	st := testStore(t)
	msgs := []chat.Message{
		chat.NewMessage(chat.RoleUser, "stored question"),
		chat.NewMessage(chat.RoleAssistant, "stored answer"),
	}
	if err := st.UpsertConversation("conv-9", msgs, []string{"doc_9"}); err != nil {
		t.Fatalf("seed archive: %v", err)
	}

	srv := httptest.NewServer(streamHandler(t, `data: [DONE]`))
	defer srv.Close()

	c := newTestController(t, srv, st, testOptions())
	if err := c.OpenConversation("conv-9"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if c.ConversationID() != "conv-9" || len(c.Messages()) != 2 {
		t.Fatalf("expected rehydrated archive conversation")
	}
	if st.ActiveConversationID() != "conv-9" {
		t.Fatalf("expected active id persisted")
	}

	if err := c.OpenConversation("missing"); !errors.Is(err, chat.ErrUnknownConversation) {
		t.Fatalf("expected ErrUnknownConversation, got %v", err)
	}
}

func TestUploadDocumentTracksSessionDoc(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload-document" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"message":"Successfully uploaded notes.txt with 3 chunks","doc_id":"doc_42","chunks":3}`))
	}))
	defer srv.Close()

	st := testStore(t)
	c := newTestController(t, srv, st, testOptions())

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := writeTestFile(path, "content"); err != nil {
		t.Fatalf("write file: %v", err)
	}

	result, notice, err := c.UploadDocument(context.Background(), path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if result.DocID != "doc_42" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if notice.Role != chat.RoleAssistant || notice.Text == "" {
		t.Fatalf("expected assistant notice, got %+v", notice)
	}
	if docs := c.SessionDocIDs(); len(docs) != 1 || docs[0] != "doc_42" {
		t.Fatalf("doc id not tracked: %v", docs)
	}
	if docs := st.SessionDocIDs(); len(docs) != 1 || docs[0] != "doc_42" {
		t.Fatalf("doc id not persisted: %v", docs)
	}
}
