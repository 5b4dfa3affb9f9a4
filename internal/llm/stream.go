package llm

import (
	"context"
	"io"
	"sync"
)

// Chunk is one element of a stream: either text content or the terminal end marker.
type Chunk struct {
	Content string
	End     bool
}

// Stream is a finite, single-consumer, non-restartable sequence of chunks.
// Content chunks arrive in upstream order, followed by exactly one End chunk on
// success. Recv then returns io.EOF, or the upstream error on failure.
type Stream struct {
	ch     chan Chunk
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	// err is written by the producer before ch is closed.
	err error
}

func newStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		ch:     make(chan Chunk),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// send blocks until the consumer takes c or ctx ends.
func (s *Stream) send(ctx context.Context, c Chunk) error {
	select {
	case s.ch <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stream) finish() {
	close(s.ch)
	close(s.done)
}

// Recv returns the next chunk. After the sequence ends it returns io.EOF, or
// the error that ended it.
func (s *Stream) Recv() (Chunk, error) {
	c, ok := <-s.ch
	if ok {
		return c, nil
	}
	if s.err != nil {
		return Chunk{}, s.err
	}
	return Chunk{}, io.EOF
}

// Close cancels the upstream call and waits for the producer to exit. It is
// safe to call more than once and after the stream has ended.
func (s *Stream) Close() {
	s.once.Do(func() {
		s.cancel()
		for range s.ch {
		}
		<-s.done
	})
}

// Collect drains the stream into a string. It is meant for tests and non-interactive callers.
func (s *Stream) Collect() (string, error) {
	defer s.Close()
	var out []byte
	for {
		c, err := s.Recv()
		if err == io.EOF {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
		out = append(out, c.Content...)
	}
}

// FromChunks returns a stream that yields the given content chunks then End.
// Tests use it to stand in for an upstream stream.
func FromChunks(ctx context.Context, err error, contents ...string) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := newStream(cancel)
	go func() {
		defer s.finish()
		for _, c := range contents {
			if e := s.send(ctx, Chunk{Content: c}); e != nil {
				s.err = e
				return
			}
		}
		if err != nil {
			s.err = err
			return
		}
		if e := s.send(ctx, Chunk{End: true}); e != nil {
			s.err = e
		}
	}()
	return s
}
