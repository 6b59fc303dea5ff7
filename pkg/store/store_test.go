package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dotsetgreg/jarvisctl/pkg/chat"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "conversations.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestClientStateRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if got := s.ActiveConversationID(); got != "" {
		t.Fatalf("expected empty conversation id, got %q", got)
	}

	if err := s.SaveActiveConversationID("conv-1"); err != nil {
		t.Fatalf("save conversation id: %v", err)
	}
	msgs := []chat.Message{chat.NewMessage(chat.RoleUser, "hello")}
	if err := s.SaveActiveMessages(msgs); err != nil {
		t.Fatalf("save messages: %v", err)
	}
	if err := s.SaveSessionDocIDs([]string{"doc_1"}); err != nil {
		t.Fatalf("save docs: %v", err)
	}

	if got := s.ActiveConversationID(); got != "conv-1" {
		t.Fatalf("expected conv-1, got %q", got)
	}
	loaded := s.ActiveMessages()
	if len(loaded) != 1 || loaded[0].Text != "hello" || loaded[0].ID != msgs[0].ID {
		t.Fatalf("unexpected messages: %+v", loaded)
	}
	if docs := s.SessionDocIDs(); len(docs) != 1 || docs[0] != "doc_1" {
		t.Fatalf("unexpected docs: %v", docs)
	}
}

func TestClearActiveState(t *testing.T) {
	s := openTestStore(t)
	_ = s.SaveActiveConversationID("conv-1")
	_ = s.SaveActiveMessages([]chat.Message{chat.NewMessage(chat.RoleUser, "x")})
	_ = s.SaveSessionDocIDs([]string{"doc_1"})

	if err := s.ClearActiveState(); err != nil {
		t.Fatalf("clear state: %v", err)
	}
	if s.ActiveConversationID() != "" || s.ActiveMessages() != nil || s.SessionDocIDs() != nil {
		t.Fatalf("expected empty state after clear")
	}
}

func TestCorruptMessagesRecordDegradesToEmpty(t *testing.T) {
	s := openTestStore(t)
	if err := s.saveState(StateMessages, "{not json"); err != nil {
		t.Fatalf("seed corrupt record: %v", err)
	}
	if got := s.ActiveMessages(); got != nil {
		t.Fatalf("expected nil for corrupt record, got %+v", got)
	}
}

func TestUpsertConversationReplacesWholesale(t *testing.T) {
	s := openTestStore(t)

	first := []chat.Message{
		chat.NewMessage(chat.RoleUser, "question one"),
		chat.NewMessage(chat.RoleAssistant, "answer one"),
	}
	if err := s.UpsertConversation("conv-1", first, []string{"doc_1"}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := append(first,
		chat.NewMessage(chat.RoleUser, "question two"),
		chat.NewMessage(chat.RoleAssistant, "answer two"),
	)
	if err := s.UpsertConversation("conv-1", second, []string{"doc_1", "doc_2"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	rec, ok := s.Conversation("conv-1")
	if !ok {
		t.Fatalf("conversation missing")
	}
	if len(rec.Messages) != 4 {
		t.Fatalf("expected 4 messages after replace, got %d", len(rec.Messages))
	}
	if len(rec.DocIDs) != 2 {
		t.Fatalf("expected 2 docs, got %v", rec.DocIDs)
	}

	summaries, err := s.ListConversations()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected a single stored conversation, got %d", len(summaries))
	}
	if summaries[0].MessageCount != 4 {
		t.Fatalf("unexpected summary: %+v", summaries[0])
	}
}

func TestUpsertEmptyConversationNeverStored(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertConversation("conv-1", nil, nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, ok := s.Conversation("conv-1"); ok {
		t.Fatalf("empty conversation must not be stored")
	}
}

func TestConversationTitleTruncation(t *testing.T) {
	s := openTestStore(t)

	long := strings.Repeat("a", 80)
	msgs := []chat.Message{chat.NewMessage(chat.RoleUser, long)}
	if err := s.UpsertConversation("conv-1", msgs, nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rec, _ := s.Conversation("conv-1")
	if rec.Title != strings.Repeat("a", 50)+"..." {
		t.Fatalf("unexpected title %q", rec.Title)
	}

	short := []chat.Message{chat.NewMessage(chat.RoleUser, "short title")}
	if err := s.UpsertConversation("conv-2", short, nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec, _ = s.Conversation("conv-2")
	if rec.Title != "short title" {
		t.Fatalf("unexpected title %q", rec.Title)
	}
}

func TestFoldLongTermDedupsByMessageID(t *testing.T) {
	s := openTestStore(t)

	m1 := chat.Message{ID: "m1", Role: chat.RoleUser, Text: "one", CreatedAt: 1}
	m2 := chat.Message{ID: "m2", Role: chat.RoleAssistant, Text: "two", CreatedAt: 2}
	m2edited := chat.Message{ID: "m2", Role: chat.RoleAssistant, Text: "two edited", CreatedAt: 2}
	m3 := chat.Message{ID: "m3", Role: chat.RoleUser, Text: "three", CreatedAt: 3}

	if err := s.FoldLongTerm("conv-1", []chat.Message{m1, m2}); err != nil {
		t.Fatalf("first fold: %v", err)
	}
	if err := s.FoldLongTerm("conv-1", []chat.Message{m2edited, m3}); err != nil {
		t.Fatalf("second fold: %v", err)
	}

	agg, err := s.LongTermMessages()
	if err != nil {
		t.Fatalf("load aggregate: %v", err)
	}
	if len(agg) != 3 {
		t.Fatalf("expected exactly {m1,m2,m3}, got %d messages", len(agg))
	}
	if agg[0].ID != "m1" || agg[1].ID != "m2" || agg[2].ID != "m3" {
		t.Fatalf("unexpected order: %+v", agg)
	}
	// First write wins.
	if agg[1].Text != "two" {
		t.Fatalf("expected original m2 text preserved, got %q", agg[1].Text)
	}
}

func TestClearConversationsWipesArchiveAndAggregate(t *testing.T) {
	s := openTestStore(t)
	msgs := []chat.Message{chat.NewMessage(chat.RoleUser, "hi")}
	_ = s.UpsertConversation("conv-1", msgs, nil)
	_ = s.FoldLongTerm("conv-1", msgs)

	if err := s.ClearConversations(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if summaries, _ := s.ListConversations(); len(summaries) != 0 {
		t.Fatalf("expected empty archive")
	}
	if agg, _ := s.LongTermMessages(); len(agg) != 0 {
		t.Fatalf("expected empty aggregate")
	}
}

func TestOpenCreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deep", "conversations.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected db file to exist: %v", err)
	}
}
