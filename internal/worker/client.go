package worker

import (
	"errors"
	"io"
	"net"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/loom/internal/models"
	"github.com/ternarybob/loom/internal/wire"
)

// Client serves an Executor over the TCP worker protocol: it sends the
// Header frame, then answers Request frames with Result frames, in order.
type Client struct {
	conn   net.Conn
	exec   Executor
	logger arbor.ILogger
}

// Dial connects to a dispatcher's worker port.
func Dial(addr string, exec Executor, logger arbor.ILogger) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, exec, logger), nil
}

// NewClient wraps an existing connection (also used with net.Pipe in tests).
func NewClient(conn net.Conn, exec Executor, logger arbor.ILogger) *Client {
	return &Client{conn: conn, exec: exec, logger: logger}
}

// Run registers and serves requests until the connection closes. A clean
// remote close returns nil.
func (c *Client) Run() error {
	defer c.conn.Close()

	if err := wire.WriteJSON(c.conn, models.HeaderFrame{Info: Info(c.exec)}); err != nil {
		return err
	}

	for {
		payload, err := wire.ReadFrame(c.conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		var req models.RequestFrame
		if err := req.UnmarshalJSON(payload); err != nil {
			return err
		}

		result := c.exec.Exec(req.Cmd)
		c.logger.Debug().
			Int("seq", int(req.Seq)).
			Str("opcode", req.Cmd.Opcode).
			Bool("ok", result.Err == nil).
			Msg("Executed command")

		if err := wire.WriteJSON(c.conn, models.ResultFrame{Seq: req.Seq, Result: result}); err != nil {
			return err
		}
	}
}

// Close terminates the connection; Run returns.
func (c *Client) Close() error {
	return c.conn.Close()
}
