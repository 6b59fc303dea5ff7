package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dotsetgreg/jarvisctl/pkg/logger"
	"github.com/dotsetgreg/jarvisctl/pkg/stream"
	"github.com/dotsetgreg/jarvisctl/pkg/utils"
)

// ErrStreamDone marks the terminal sentinel of a chat stream. Everything
// before it arrived intact.
var ErrStreamDone = errors.New("chat stream done")

// StreamChat opens the streaming chat endpoint. The caller owns the
// returned stream and must Close it.
func (c *Client) StreamChat(ctx context.Context, chatReq ChatRequest) (*ChatStream, error) {
	jsonData, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/stream", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, extractAPIError(resp.StatusCode, body)
	}

	return &ChatStream{
		body:    resp.Body,
		decoder: &stream.LineDecoder{},
	}, nil
}

// ChatStream yields classified events from one streaming chat exchange.
type ChatStream struct {
	body    io.ReadCloser
	decoder *stream.LineDecoder
	pending []string
	eof     bool
}

// Next returns the next event. It returns ErrStreamDone after the
// terminal sentinel, io.EOF when the transport ended without one, and
// the transport error otherwise. Malformed and non-event lines are
// skipped.
func (s *ChatStream) Next() (stream.Event, error) {
	for {
		line, err := s.nextLine()
		if err != nil {
			return stream.Event{}, err
		}

		evt, kind := stream.ParseLine(line)
		switch kind {
		case stream.LineEvent:
			return evt, nil
		case stream.LineDone:
			return stream.Event{}, ErrStreamDone
		case stream.LineMalformed:
			logger.WarnCF("backend", "Skipping malformed stream line", map[string]interface{}{
				"line": utils.Truncate(line, 120),
			})
		}
	}
}

func (s *ChatStream) nextLine() (string, error) {
	for {
		if len(s.pending) > 0 {
			line := s.pending[0]
			s.pending = s.pending[1:]
			return line, nil
		}
		if s.eof {
			return "", io.EOF
		}

		chunk := make([]byte, 4096)
		n, err := s.body.Read(chunk)
		if n > 0 {
			s.pending = s.decoder.Feed(chunk[:n])
		}
		if err != nil {
			if err == io.EOF {
				s.eof = true
				if trailer, ok := s.decoder.Flush(); ok {
					s.pending = append(s.pending, trailer)
				}
				continue
			}
			return "", fmt.Errorf("stream read failed: %w", err)
		}
	}
}

func (s *ChatStream) Close() error {
	return s.body.Close()
}
