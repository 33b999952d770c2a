package ai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrorMarkerPrefix starts the in-band text emitted when a stream fails.
const ErrorMarkerPrefix = "\n[Error contacting LLM]: "

const maxLineBytes = 1 << 20

// Chunk is one piece of streamed output. A chunk with a non-nil Err is the
// terminal error marker; its Text is the human-readable marker itself.
type Chunk struct {
	Text string
	Err  error
}

// Failed reports whether this is the terminal error marker.
func (c Chunk) Failed() bool {
	return c.Err != nil
}

// ErrorMarker renders the in-band text for a failed stream.
func ErrorMarker(err error) string {
	return ErrorMarkerPrefix + err.Error() + "\n"
}

// Stream is a lazy, finite, non-restartable sequence of chunks.
//
//	for s.Next() {
//		c := s.Chunk()
//	}
//
// Close must be called to release the upstream connection.
type Stream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
	finish  func(error)

	cur     Chunk
	err     error
	pending *Chunk
	done    bool
	once    sync.Once
}

func newStream(ctx context.Context, body io.ReadCloser, finish func(error)) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	return &Stream{
		ctx:     ctx,
		body:    body,
		scanner: scanner,
		finish:  finish,
	}
}

func failedStream(err error, finish func(error)) *Stream {
	c := Chunk{Text: ErrorMarker(err), Err: err}
	return &Stream{
		pending: &c,
		err:     err,
		finish:  finish,
	}
}

// Next advances to the next chunk. It returns false once the stream is over.
func (s *Stream) Next() bool {
	if s.pending != nil {
		s.cur = *s.pending
		s.pending = nil
		s.done = true
		return true
	}
	if s.done {
		s.Close()
		return false
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		var msg generateResponse
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return s.fail(&StatusError{Code: 200, Body: msg.Error})
		}
		if msg.Done {
			s.done = true
			if msg.Response == "" {
				s.Close()
				return false
			}
		}
		if msg.Response == "" {
			continue
		}
		s.cur = Chunk{Text: msg.Response}
		return true
	}
	if err := s.scanner.Err(); err != nil {
		if s.ctx != nil && s.ctx.Err() != nil {
			err = s.ctx.Err()
		}
		return s.fail(transportError(fmt.Errorf("read stream: %w", err)))
	}
	if s.ctx != nil && s.ctx.Err() != nil {
		return s.fail(transportError(s.ctx.Err()))
	}
	s.done = true
	s.Close()
	return false
}

func (s *Stream) fail(err error) bool {
	s.err = err
	s.done = true
	s.cur = Chunk{Text: ErrorMarker(err), Err: err}
	return true
}

// Chunk returns the chunk produced by the last successful Next.
func (s *Stream) Chunk() Chunk {
	return s.cur
}

// Err returns the error that ended the stream, or nil after a clean finish.
func (s *Stream) Err() error {
	return s.err
}

// Close releases the upstream connection. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		if s.body != nil {
			err = s.body.Close()
		}
		if s.finish != nil {
			s.finish(s.err)
		}
	})
	return err
}
