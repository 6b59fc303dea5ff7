// Jarvisctl - Terminal client for the Jarvis assistant backend
// License: MIT
//
// Copyright (c) 2026 Jarvisctl contributors

package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/dotsetgreg/jarvisctl/pkg/backend"
	"github.com/dotsetgreg/jarvisctl/pkg/chat"
	"github.com/dotsetgreg/jarvisctl/pkg/logger"
	"github.com/dotsetgreg/jarvisctl/pkg/store"
	"github.com/dotsetgreg/jarvisctl/pkg/stream"
	"github.com/dotsetgreg/jarvisctl/pkg/utils"
	"github.com/google/uuid"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSending    Phase = "sending"
	PhaseStreaming  Phase = "streaming"
	PhaseCommitting Phase = "committing"
	PhaseFailed     Phase = "failed"
)

// failureText mirrors what the assistant says when the backend or the
// transport gives out mid-turn.
const failureText = "Sorry, I encountered an error. Please make sure the backend is running."

// Options are the per-controller chat defaults.
type Options struct {
	Mode                string
	Model               string
	MemoryMode          chat.MemoryMode
	CitationEnforcement bool
	// ConversationID pins the controller to a fixed conversation instead
	// of the persisted active one.
	ConversationID string
	// DetachedState skips the client-state records. Gateway controllers
	// are detached so they never fight over the single active slot.
	DetachedState bool
}

// Controller owns one active conversation: it validates submissions,
// drives the streaming exchange, projects progress, and commits turns
// to the store.
type Controller struct {
	client *backend.Client
	store  *store.Store

	mu       sync.Mutex
	opts     Options
	phase    Phase
	inFlight bool
	progress *stream.ProgressLog

	conversationID string
	messages       []chat.Message
	sessionDocIDs  []string
}

// New builds a controller and rehydrates its conversation. Corrupt or
// missing persisted state degrades to an empty slate.
func New(client *backend.Client, st *store.Store, opts Options) (*Controller, error) {
	if opts.MemoryMode == "" {
		opts.MemoryMode = chat.MemoryShortTerm
	}
	if !opts.MemoryMode.Valid() {
		return nil, chat.ErrInvalidMemory
	}

	c := &Controller{
		client:   client,
		store:    st,
		opts:     opts,
		phase:    PhaseIdle,
		progress: stream.NewProgressLog(),
	}

	if opts.ConversationID != "" {
		c.conversationID = opts.ConversationID
		if rec, ok := st.Conversation(opts.ConversationID); ok {
			c.messages = rec.Messages
			c.sessionDocIDs = rec.DocIDs
		}
	} else if !opts.DetachedState {
		c.conversationID = st.ActiveConversationID()
		c.messages = st.ActiveMessages()
		c.sessionDocIDs = st.SessionDocIDs()
	}

	return c, nil
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) setPhase(phase Phase) {
	c.mu.Lock()
	c.phase = phase
	c.mu.Unlock()
}

// Progress is a live snapshot of the in-flight request's status steps.
func (c *Controller) Progress() []string {
	return c.progress.Steps()
}

func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

func (c *Controller) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Controller) SessionDocIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sessionDocIDs))
	copy(out, c.sessionDocIDs)
	return out
}

func (c *Controller) Mode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.Mode
}

func (c *Controller) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.Model
}

func (c *Controller) MemoryMode() chat.MemoryMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.MemoryMode
}

func (c *Controller) SetMode(mode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.Mode = strings.TrimSpace(mode)
}

func (c *Controller) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.Model = strings.TrimSpace(model)
}

func (c *Controller) SetMemoryMode(mode chat.MemoryMode) error {
	if !mode.Valid() {
		return chat.ErrInvalidMemory
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.MemoryMode = mode
	return nil
}

// Send runs one full turn. The returned message is the committed
// assistant reply; a failed turn carries Failed=true and is part of the
// conversation like any other. Cancellation via ctx leaves the
// conversation untouched.
func (c *Controller) Send(ctx context.Context, text string, onStep func(step string)) (chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, chat.ErrEmptyMessage
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return chat.Message{}, chat.ErrRequestInFlight
	}
	if strings.TrimSpace(c.opts.Mode) == "" {
		c.mu.Unlock()
		return chat.Message{}, chat.ErrMissingMode
	}
	if strings.TrimSpace(c.opts.Model) == "" {
		c.mu.Unlock()
		return chat.Message{}, chat.ErrMissingModel
	}
	c.inFlight = true
	c.phase = PhaseSending
	c.progress.Drain()

	opts := c.opts
	convID := c.conversationID
	active := make([]chat.Message, len(c.messages))
	copy(active, c.messages)
	docIDs := make([]string, len(c.sessionDocIDs))
	copy(docIDs, c.sessionDocIDs)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.phase = PhaseIdle
		c.mu.Unlock()
	}()

	var aggregate []chat.Message
	if opts.MemoryMode == chat.MemoryLongTerm {
		var err error
		aggregate, err = c.store.LongTermMessages()
		if err != nil {
			logger.WarnCF("session", "Long-term aggregate unavailable, falling back to active history", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	req := backend.ChatRequest{
		Message:             text,
		ConversationID:      convID,
		Mode:                opts.Mode,
		Model:               opts.Model,
		SessionDocIDs:       docIDs,
		MemoryMode:          string(opts.MemoryMode),
		ConversationContext: chat.BuildContext(opts.MemoryMode, active, aggregate),
		CitationEnforcement: opts.CitationEnforcement,
	}

	userMsg := chat.NewMessage(chat.RoleUser, text)

	logger.DebugCF("session", "Sending chat request", map[string]interface{}{
		"conversation_id": convID,
		"mode":            opts.Mode,
		"model":           opts.Model,
		"memory_mode":     string(opts.MemoryMode),
		"preview":         utils.Truncate(text, 50),
	})

	cs, err := c.client.StreamChat(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return chat.Message{}, ctx.Err()
		}
		logger.ErrorCF("session", "Chat request failed", map[string]interface{}{"error": err.Error()})
		return c.commitTurn(userMsg, convID, failureText, nil, "", "", true), nil
	}
	defer cs.Close()

	c.setPhase(PhaseStreaming)

	var (
		resp         *stream.Event
		errText      string
		errSeen      bool
		sentinelSeen bool
	)

loop:
	for {
		evt, err := cs.Next()
		if err != nil {
			switch {
			case errors.Is(err, backend.ErrStreamDone):
				sentinelSeen = true
				break loop
			case errors.Is(err, io.EOF):
				break loop
			default:
				if ctx.Err() != nil {
					return chat.Message{}, ctx.Err()
				}
				logger.ErrorCF("session", "Stream broke mid-turn", map[string]interface{}{"error": err.Error()})
				return c.commitTurn(userMsg, convID, failureText, nil, "", "", true), nil
			}
		}

		switch evt.Type {
		case stream.EventStatus:
			c.progress.Append(evt.Step)
			// The first id the stream carries is authoritative for the
			// whole turn; later ones are ignored.
			if convID == "" {
				convID = evt.ConversationID
			}
			if onStep != nil {
				onStep(evt.Step)
			}
		case stream.EventResponse:
			e := evt
			resp = &e
			if convID == "" {
				convID = evt.ConversationID
			}
		case stream.EventError:
			// An error event overrides any response already seen.
			errText = evt.ErrorText
			errSeen = true
		}
	}

	if ctx.Err() != nil {
		return chat.Message{}, ctx.Err()
	}

	c.setPhase(PhaseCommitting)

	switch {
	case errSeen:
		if errText == "" {
			errText = failureText
		}
		return c.commitTurn(userMsg, convID, errText, nil, "", "", true), nil
	case resp != nil:
		return c.commitTurn(userMsg, convID, resp.Response, resp.Sources, resp.ModeUsed, resp.ModelUsed, false), nil
	case sentinelSeen:
		// Terminal sentinel with no response event commits an empty
		// answer rather than a failure.
		return c.commitTurn(userMsg, convID, "", nil, "", "", false), nil
	default:
		logger.WarnC("session", "Stream ended without sentinel or response")
		return c.commitTurn(userMsg, convID, failureText, nil, "", "", true), nil
	}
}

func (c *Controller) commitTurn(userMsg chat.Message, convID, text string, sources []string, modeUsed, modelUsed string, failed bool) chat.Message {
	reply := chat.NewMessage(chat.RoleAssistant, text)
	reply.Sources = sources
	reply.Mode = modeUsed
	reply.Model = modelUsed
	reply.Failed = failed
	reply.Steps = c.progress.Drain()

	c.mu.Lock()
	if failed {
		c.phase = PhaseFailed
	}
	if convID == "" {
		convID = c.conversationID
	}
	if convID == "" {
		convID = "conv-" + uuid.NewString()
	}
	c.conversationID = convID
	c.messages = append(c.messages, userMsg, reply)

	messages := make([]chat.Message, len(c.messages))
	copy(messages, c.messages)
	docIDs := make([]string, len(c.sessionDocIDs))
	copy(docIDs, c.sessionDocIDs)
	detached := c.opts.DetachedState
	fold := c.opts.MemoryMode == chat.MemoryLongTerm
	c.mu.Unlock()

	c.persist(convID, messages, docIDs, detached, fold)
	return reply
}

// persist flushes the turn before control returns to the caller. The
// long-term aggregate only grows under the long-term policy.
func (c *Controller) persist(convID string, messages []chat.Message, docIDs []string, detached, fold bool) {
	if !detached {
		if err := c.store.SaveActiveConversationID(convID); err != nil {
			logger.ErrorCF("session", "Failed to persist conversation id", map[string]interface{}{"error": err.Error()})
		}
		if err := c.store.SaveActiveMessages(messages); err != nil {
			logger.ErrorCF("session", "Failed to persist messages", map[string]interface{}{"error": err.Error()})
		}
		if err := c.store.SaveSessionDocIDs(docIDs); err != nil {
			logger.ErrorCF("session", "Failed to persist session docs", map[string]interface{}{"error": err.Error()})
		}
	}
	if err := c.store.UpsertConversation(convID, messages, docIDs); err != nil {
		logger.ErrorCF("session", "Failed to archive conversation", map[string]interface{}{"error": err.Error()})
	}
	if fold {
		if err := c.store.FoldLongTerm(convID, messages); err != nil {
			logger.ErrorCF("session", "Failed to fold long-term memory", map[string]interface{}{"error": err.Error()})
		}
	}
}

// NewConversation resets the active conversation and clears the
// persisted client state.
func (c *Controller) NewConversation() error {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return chat.ErrRequestInFlight
	}
	c.conversationID = ""
	c.messages = nil
	c.sessionDocIDs = nil
	detached := c.opts.DetachedState
	c.mu.Unlock()

	c.progress.Drain()
	if detached {
		return nil
	}
	return c.store.ClearActiveState()
}

// OpenConversation makes a stored conversation the active one,
// rehydrating its messages and session documents wholesale.
func (c *Controller) OpenConversation(id string) error {
	rec, ok := c.store.Conversation(id)
	if !ok {
		return chat.ErrUnknownConversation
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return chat.ErrRequestInFlight
	}
	c.conversationID = rec.ID
	c.messages = rec.Messages
	c.sessionDocIDs = rec.DocIDs
	detached := c.opts.DetachedState
	messages := make([]chat.Message, len(c.messages))
	copy(messages, c.messages)
	docIDs := make([]string, len(c.sessionDocIDs))
	copy(docIDs, c.sessionDocIDs)
	c.mu.Unlock()

	if detached {
		return nil
	}
	if err := c.store.SaveActiveConversationID(rec.ID); err != nil {
		return err
	}
	if err := c.store.SaveActiveMessages(messages); err != nil {
		return err
	}
	return c.store.SaveSessionDocIDs(docIDs)
}

// UploadDocument sends a file to the knowledge base, tracks its doc id
// in the session document set, and records an assistant-style notice in
// the conversation.
func (c *Controller) UploadDocument(ctx context.Context, path string) (backend.UploadResult, chat.Message, error) {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return backend.UploadResult{}, chat.Message{}, chat.ErrRequestInFlight
	}
	convID := c.conversationID
	if convID == "" {
		convID = "conv-" + uuid.NewString()
	}
	c.mu.Unlock()

	result, err := c.client.Upload(ctx, path, convID)
	if err != nil {
		return backend.UploadResult{}, chat.Message{}, err
	}

	noticeText := result.Message
	if noticeText == "" {
		noticeText = "Uploaded " + path
	}
	notice := chat.NewMessage(chat.RoleAssistant, noticeText)

	c.mu.Lock()
	c.conversationID = convID
	c.sessionDocIDs = append(c.sessionDocIDs, result.DocID)
	c.messages = append(c.messages, notice)
	messages := make([]chat.Message, len(c.messages))
	copy(messages, c.messages)
	docIDs := make([]string, len(c.sessionDocIDs))
	copy(docIDs, c.sessionDocIDs)
	detached := c.opts.DetachedState
	fold := c.opts.MemoryMode == chat.MemoryLongTerm
	c.mu.Unlock()

	c.persist(convID, messages, docIDs, detached, fold)

	logger.InfoCF("session", "Document uploaded", map[string]interface{}{
		"doc_id": result.DocID,
		"chunks": result.Chunks,
	})
	return result, notice, nil
}
