package protocol

import (
	"context"
	"io"
)

// FileCarrier transports frames over a raw byte stream — a serial
// device file or a bench simulator's socket. No third-party serial
// library appears anywhere in the example pack, so the transport is
// plain stdlib io.
type FileCarrier struct {
	Conn       io.ReadWriter
	ReadBuffer int // sized to MaxResponseBytes when zero
}

// Transact writes frame and reads back one response frame. It does not
// itself enforce a deadline; callers rely on Exchange's per-call
// context timeout plus whatever read deadline the underlying Conn
// supports.
func (c *FileCarrier) Transact(ctx context.Context, frame []byte) ([]byte, error) {
	if _, err := c.Conn.Write(frame); err != nil {
		return nil, err
	}

	bufSize := c.ReadBuffer
	if bufSize <= 0 {
		bufSize = MaxResponseBytes
	}
	buf := make([]byte, bufSize)
	n, err := c.Conn.Read(buf)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}
