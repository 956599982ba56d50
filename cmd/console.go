package cmd

import (
	"bytes"
	"io"
	"sync"
)

const clearLine = "\r\x1b[K"

// console multiplexes log output and a status line on one terminal. In raw
// mode newlines need an explicit carriage return and the status line is
// redrawn below every log record.
type console struct {
	mu     sync.Mutex
	out    io.Writer
	raw    bool
	status string
}

func newConsole(out io.Writer, raw bool) *console {
	return &console{out: out, raw: raw}
}

// Write implements io.Writer
func (c *console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.raw {
		return c.out.Write(p)
	}

	var buf bytes.Buffer
	buf.WriteString(clearLine)
	buf.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n")))
	buf.WriteString(c.status)
	if _, err := c.out.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetStatus replaces the status line. Only raw consoles show it.
func (c *console) SetStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == status {
		return
	}
	c.status = status
	if c.raw {
		_, _ = io.WriteString(c.out, clearLine+status)
	}
}

// Close moves past the status line
func (c *console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.raw && c.status != "" {
		_, err := io.WriteString(c.out, "\r\n")
		return err
	}
	return nil
}
