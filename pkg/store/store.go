// Jarvisctl - Terminal client for the Jarvis assistant backend
// License: MIT
//
// Copyright (c) 2026 Jarvisctl contributors

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dotsetgreg/jarvisctl/pkg/chat"
	"github.com/dotsetgreg/jarvisctl/pkg/logger"
	"github.com/dotsetgreg/jarvisctl/pkg/utils"
	_ "modernc.org/sqlite"
)

const titleLimit = 50

// Client-state record keys. One row each, mirroring the three
// independently persisted pieces of session state.
const (
	StateConversationID = "conversation_id"
	StateMessages       = "messages"
	StateSessionDocIDs  = "session_doc_ids"
)

// Store is the durable conversation archive plus the three client-state
// records and the long-term aggregate.
type Store struct {
	db *sql.DB
}

// Open creates/opens the conversation database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process client. One shared connection avoids writer lock
	// contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS client_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			messages_json TEXT NOT NULL,
			doc_ids_json TEXT NOT NULL DEFAULT '[]',
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS conversations_updated_idx ON conversations(updated_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS long_term_memory (
			message_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS long_term_order_idx ON long_term_memory(created_at_ms, message_id);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init store schema: %w", err)
		}
	}
	return nil
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}

// --- client state ---

func (s *Store) saveState(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO client_state(key, value, updated_at_ms) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at_ms=excluded.updated_at_ms`,
		key, value, nowMS(),
	)
	if err != nil {
		return fmt.Errorf("save client state %s: %w", key, err)
	}
	return nil
}

func (s *Store) loadState(key string) (string, bool) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM client_state WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.WarnCF("store", "Failed to read client state", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return "", false
	}
	return value, true
}

func (s *Store) SaveActiveConversationID(id string) error {
	return s.saveState(StateConversationID, id)
}

// ActiveConversationID returns the persisted conversation id, or ""
// when absent.
func (s *Store) ActiveConversationID() string {
	value, _ := s.loadState(StateConversationID)
	return value
}

func (s *Store) SaveActiveMessages(messages []chat.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode active messages: %w", err)
	}
	return s.saveState(StateMessages, string(data))
}

// ActiveMessages rehydrates the active conversation. A missing or
// corrupt record degrades to an empty slate.
func (s *Store) ActiveMessages() []chat.Message {
	value, ok := s.loadState(StateMessages)
	if !ok {
		return nil
	}
	var messages []chat.Message
	if err := json.Unmarshal([]byte(value), &messages); err != nil {
		logger.WarnCF("store", "Corrupt active messages record, starting empty", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return messages
}

func (s *Store) SaveSessionDocIDs(docIDs []string) error {
	if docIDs == nil {
		docIDs = []string{}
	}
	data, err := json.Marshal(docIDs)
	if err != nil {
		return fmt.Errorf("encode session doc ids: %w", err)
	}
	return s.saveState(StateSessionDocIDs, string(data))
}

func (s *Store) SessionDocIDs() []string {
	value, ok := s.loadState(StateSessionDocIDs)
	if !ok {
		return nil
	}
	var docIDs []string
	if err := json.Unmarshal([]byte(value), &docIDs); err != nil {
		logger.WarnCF("store", "Corrupt session doc record, starting empty", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return docIDs
}

// ClearActiveState removes all three client-state records.
func (s *Store) ClearActiveState() error {
	_, err := s.db.Exec(`DELETE FROM client_state WHERE key IN (?, ?, ?)`,
		StateConversationID, StateMessages, StateSessionDocIDs)
	if err != nil {
		return fmt.Errorf("clear client state: %w", err)
	}
	return nil
}

// --- conversation archive ---

type ConversationRecord struct {
	ID          string
	Title       string
	Messages    []chat.Message
	DocIDs      []string
	CreatedAtMS int64
	UpdatedAtMS int64
}

type ConversationSummary struct {
	ID           string
	Title        string
	MessageCount int
	DocCount     int
	UpdatedAtMS  int64
}

// UpsertConversation replaces the stored conversation wholesale. Empty
// conversations are never stored.
func (s *Store) UpsertConversation(id string, messages []chat.Message, docIDs []string) error {
	if id == "" || len(messages) == 0 {
		return nil
	}
	if docIDs == nil {
		docIDs = []string{}
	}

	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode conversation messages: %w", err)
	}
	docsJSON, err := json.Marshal(docIDs)
	if err != nil {
		return fmt.Errorf("encode conversation docs: %w", err)
	}

	title := utils.Truncate(messages[0].Text, titleLimit)
	now := nowMS()

	_, err = s.db.Exec(
		`INSERT INTO conversations(id, title, messages_json, doc_ids_json, created_at_ms, updated_at_ms)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title,
			messages_json=excluded.messages_json,
			doc_ids_json=excluded.doc_ids_json,
			updated_at_ms=excluded.updated_at_ms`,
		id, title, string(messagesJSON), string(docsJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert conversation %s: %w", id, err)
	}
	return nil
}

func (s *Store) Conversation(id string) (ConversationRecord, bool) {
	var rec ConversationRecord
	var messagesJSON, docsJSON string
	err := s.db.QueryRow(
		`SELECT id, title, messages_json, doc_ids_json, created_at_ms, updated_at_ms
		 FROM conversations WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Title, &messagesJSON, &docsJSON, &rec.CreatedAtMS, &rec.UpdatedAtMS)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.WarnCF("store", "Failed to read conversation", map[string]interface{}{
				"id":    id,
				"error": err.Error(),
			})
		}
		return ConversationRecord{}, false
	}

	if err := json.Unmarshal([]byte(messagesJSON), &rec.Messages); err != nil {
		logger.WarnCF("store", "Corrupt conversation messages, returning empty", map[string]interface{}{
			"id":    id,
			"error": err.Error(),
		})
		rec.Messages = nil
	}
	if err := json.Unmarshal([]byte(docsJSON), &rec.DocIDs); err != nil {
		rec.DocIDs = nil
	}
	return rec, true
}

func (s *Store) ListConversations() ([]ConversationSummary, error) {
	rows, err := s.db.Query(
		`SELECT id, title, messages_json, doc_ids_json, updated_at_ms
		 FROM conversations ORDER BY updated_at_ms DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var summary ConversationSummary
		var messagesJSON, docsJSON string
		if err := rows.Scan(&summary.ID, &summary.Title, &messagesJSON, &docsJSON, &summary.UpdatedAtMS); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		var messages []chat.Message
		if err := json.Unmarshal([]byte(messagesJSON), &messages); err == nil {
			summary.MessageCount = len(messages)
		}
		var docIDs []string
		if err := json.Unmarshal([]byte(docsJSON), &docIDs); err == nil {
			summary.DocCount = len(docIDs)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (s *Store) DeleteConversation(id string) error {
	_, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return nil
}

// ClearConversations wipes the archive and the long-term aggregate.
func (s *Store) ClearConversations() error {
	if _, err := s.db.Exec(`DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM long_term_memory`); err != nil {
		return fmt.Errorf("clear long-term memory: %w", err)
	}
	return nil
}

// --- long-term aggregate ---

// FoldLongTerm merges messages into the aggregate. Dedup is strictly by
// message id; the first write wins and later folds never rewrite it.
func (s *Store) FoldLongTerm(conversationID string, messages []chat.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin long-term fold: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO long_term_memory(message_id, conversation_id, role, text, created_at_ms)
		 VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare long-term fold: %w", err)
	}
	defer stmt.Close()

	for _, msg := range messages {
		if _, err := stmt.Exec(msg.ID, conversationID, string(msg.Role), msg.Text, msg.CreatedAt); err != nil {
			return fmt.Errorf("fold message %s: %w", msg.ID, err)
		}
	}
	return tx.Commit()
}

// LongTermMessages returns the aggregate in insertion-time order.
func (s *Store) LongTermMessages() ([]chat.Message, error) {
	rows, err := s.db.Query(
		`SELECT message_id, role, text, created_at_ms
		 FROM long_term_memory ORDER BY created_at_ms, message_id`)
	if err != nil {
		return nil, fmt.Errorf("load long-term memory: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var msg chat.Message
		var role string
		if err := rows.Scan(&msg.ID, &role, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan long-term row: %w", err)
		}
		msg.Role = chat.Role(role)
		out = append(out, msg)
	}
	return out, rows.Err()
}
