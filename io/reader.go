// Package io carries the stream helpers the pty bridge is built from:
// context-cancellable reads and a broadcast writer for terminal
// output.
package io

import (
	"context"
	"io"
)

// NewContextReader wraps r so a blocked Read returns when ctx is
// cancelled. The pty controller has no deadline support; this is how
// bridge loops shut down without waiting for the child to produce
// output.
func NewContextReader(ctx context.Context, r io.Reader) io.Reader {
	return contextReader{Reader: r, ctx: ctx}
}

type contextReader struct {
	io.Reader
	ctx context.Context
}

type readResult struct {
	n   int
	err error
}

func (r contextReader) Read(p []byte) (n int, err error) {
	c := make(chan readResult, 1)

	go func(ctx context.Context, reader io.Reader) {
		defer close(c)

		// return early if context is done
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := reader.Read(p)
		c <- readResult{n, err}
	}(r.ctx, r.Reader)

	select {
	case rr := <-c:
		return rr.n, rr.err
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	}
}

// NewContextWriter wraps w so a backpressured Write returns when ctx
// is cancelled.
func NewContextWriter(ctx context.Context, w io.Writer) io.Writer {
	return contextWriter{Writer: w, ctx: ctx}
}

type contextWriter struct {
	io.Writer
	ctx context.Context
}

func (w contextWriter) Write(p []byte) (n int, err error) {
	c := make(chan readResult, 1)

	go func(ctx context.Context, writer io.Writer) {
		defer close(c)

		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := writer.Write(p)
		c <- readResult{n, err}
	}(w.ctx, w.Writer)

	select {
	case wr := <-c:
		return wr.n, wr.err
	case <-w.ctx.Done():
		return 0, w.ctx.Err()
	}
}
