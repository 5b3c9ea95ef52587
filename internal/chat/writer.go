package chat

import (
	"bufio"
)

// Send queues one line for the client without blocking. A full queue means
// the peer cannot keep up, so the client is closed and ErrOutboundFull returned.
func (c *Client) Send(line string) error {
	select {
	case <-c.done:
		return ErrSessionClosed
	default:
	}
	select {
	case c.Out <- line:
		return nil
	default:
		c.shutdown(true)
		return ErrOutboundFull
	}
}

// Close releases the transport and stops the writer. Safe to call many times
// from any goroutine; a blocked read or write on Conn returns immediately.
func (c *Client) Close() {
	c.shutdown(false)
}

func (c *Client) shutdown(overflow bool) {
	c.closeOnce.Do(func() {
		if overflow {
			SessionsDropped.Inc()
		}
		close(c.done)
		if c.Conn != nil {
			_ = c.Conn.Close()
		}
	})
}

// StartOutboundWriter drains c.Out onto the connection until the client is
// closed. A write error closes the client, which ends its read loop too.
func StartOutboundWriter(c *Client) {
	go func() {
		defer c.Close()
		w := bufio.NewWriter(c.Conn)
		for {
			select {
			case msg := <-c.Out:
				if _, err := w.WriteString(msg + "\n"); err != nil {
					return
				}
				// Batch queued lines into one flush.
				if len(c.Out) > 0 {
					continue
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-c.done:
				return
			}
		}
	}()
}
