package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// StreamEvent is one message from the push channel.
type StreamEvent struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId"`
}

// Stream is an open push channel. Events are delivered on Events(); the
// channel closes when the server ends the stream or Close is called.
type Stream struct {
	body   io.ReadCloser
	events chan StreamEvent

	mu      sync.Mutex
	readErr error

	closeOnce sync.Once
}

// OpenStream subscribes to the user's push channel. The returned stream stays
// open until the context is cancelled, Close is called, or the server drops
// the connection.
func (c *APIClient) OpenStream(ctx context.Context, userID int64) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/sse/%d", c.baseURL, userID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, apiError(resp)
	}

	s := &Stream{
		body:   resp.Body,
		events: make(chan StreamEvent, 8),
	}
	go s.readLoop()
	return s, nil
}

func (s *Stream) Events() <-chan StreamEvent {
	return s.events
}

// Err reports why the stream ended. nil after a clean Close.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.body.Close()
	})
}

// readLoop parses the event-stream wire format: "event:" and "data:" lines
// terminated by a blank line per message.
func (s *Stream) readLoop() {
	defer close(s.events)
	scanner := bufio.NewScanner(s.body)

	var eventName, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data != "" {
				s.dispatch(eventName, data)
			}
			eventName, data = "", ""
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	if err := scanner.Err(); err != nil {
		s.mu.Lock()
		s.readErr = fmt.Errorf("%w: %v", ErrTransport, err)
		s.mu.Unlock()
	}
}

func (s *Stream) dispatch(eventName, data string) {
	var event StreamEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return
	}
	if event.Type == "" {
		event.Type = eventName
	}
	s.events <- event
}
