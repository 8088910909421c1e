package io

import (
	"io"
	"sync"
)

func NewMultiWriter(writers ...io.Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// MultiWriter broadcasts terminal output to a changeable set of sinks.
// A sink attached mid-session gets the most recent write first so it
// does not join on a blank screen.
type MultiWriter struct {
	mu      sync.Mutex
	writers []io.Writer
	last    []byte
}

func (m *MultiWriter) Append(writers ...io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.last) > 0 {
		for _, w := range writers {
			if _, err := w.Write(m.last); err != nil {
				return err
			}
		}
	}

	m.writers = append(m.writers, writers...)
	return nil
}

func (m *MultiWriter) Remove(writers ...io.Writer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.writers) - 1; i >= 0; i-- {
		for _, v := range writers {
			if m.writers[i] == v {
				m.writers = append(m.writers[:i], m.writers[i+1:]...)
				break
			}
		}
	}
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.last = make([]byte, len(p))
	copy(m.last, p)

	for _, w := range m.writers {
		n, err = w.Write(p)
		if err != nil {
			return
		}
		if n != len(p) {
			err = io.ErrShortWrite
			return
		}
	}

	return len(p), nil
}
