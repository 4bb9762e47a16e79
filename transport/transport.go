// Package transport carries structurally transferable messages between the
// control context and the execution context.
//
// Messages are encoded as newline-delimited JSON frames over any byte
// stream: an in-memory pipe for a worker goroutine, or the stdin/stdout
// pair of a child process. Nothing but plain data crosses a Conn.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"go.uber.org/multierr"
)

// Conn is one end of a message channel. Send and Receive may be called
// concurrently with each other; concurrent Sends are serialised.
type Conn struct {
	rwc io.ReadWriteCloser
	dec *json.Decoder
	enc *json.Encoder

	readMu  sync.Mutex
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// New wraps a byte stream.
func New(rwc io.ReadWriteCloser) *Conn {
	return &Conn{
		rwc: rwc,
		dec: json.NewDecoder(rwc),
		enc: json.NewEncoder(rwc),
	}
}

// Pipe returns two connected in-memory Conns.
func Pipe() (*Conn, *Conn) {
	a, b := net.Pipe()
	return New(a), New(b)
}

// Stdio returns a Conn reading from os.Stdin and writing to os.Stdout.
func Stdio() *Conn {
	return New(Join(os.Stdin, os.Stdout))
}

// Send writes msg as a single frame.
func (c *Conn) Send(msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// Encoder terminates every frame with a newline.
	if err := c.enc.Encode(msg); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

// Receive reads the next frame into msg. It returns io.EOF once the peer
// has closed the stream.
func (c *Conn) Receive(msg any) error {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if err := c.dec.Decode(msg); err != nil {
		if IsClosed(err) {
			return io.EOF
		}
		return fmt.Errorf("receive frame: %w", err)
	}
	return nil
}

// Close closes the underlying stream. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.rwc.Close()
	})
	return c.closeErr
}

// IsClosed reports whether err means the stream is gone.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed)
}

type joined struct {
	io.Reader
	io.Writer
	closers []io.Closer
}

// Join combines a reader and a writer into a stream. Close closes r and w
// if they implement io.Closer, then any extra closers.
func Join(r io.Reader, w io.Writer, closers ...io.Closer) io.ReadWriteCloser {
	j := &joined{Reader: r, Writer: w}
	if c, ok := w.(io.Closer); ok {
		j.closers = append(j.closers, c)
	}
	if c, ok := r.(io.Closer); ok {
		j.closers = append(j.closers, c)
	}
	j.closers = append(j.closers, closers...)
	return j
}

func (j *joined) Close() error {
	var err error
	for _, c := range j.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}
