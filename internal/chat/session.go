package chat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	PromptUsername = "Enter a unique username:"
	PromptTaken    = "Username already taken. Enter a different username:"
	PromptInvalid  = "Invalid username. Enter a different username:"
)

func (s *Server) handleSession(c *Client) {
	defer s.wg.Done()

	logger := s.logger.With("session", c.ID, "addr", remoteAddr(c.Conn))
	registered := false
	defer func() {
		s.reg.Unregister(c)
		if registered {
			s.router.AnnounceLeave(c)
			logger.Info("user left", "username", c.Username())
		}
		c.Close()
	}()

	StartOutboundWriter(c)
	reader := bufio.NewReader(c.Conn)

	if err := s.handshake(c, reader); err != nil {
		if !isDisconnect(err) {
			logger.Warn("handshake failed", "error", err)
		}
		return
	}
	registered = true
	logger.Info("user registered", "username", c.Username())

	_ = c.Send("Welcome to the chat, " + c.Username() + "!")
	s.router.AnnounceJoin(c)

	// Main input loop.
	for {
		line, err := readLine(reader)
		if err != nil {
			if !isDisconnect(err) {
				logger.Warn("read failed", "username", c.Username(), "error", err)
			}
			return
		}
		s.router.Dispatch(c, line)
	}
}

// handshake prompts until the client presents a free, valid username. It
// only fails when the connection does.
func (s *Server) handshake(c *Client, reader *bufio.Reader) error {
	prompt := PromptUsername
	for {
		if err := c.Send(prompt); err != nil {
			return err
		}
		line, err := readLine(reader)
		if err != nil {
			return err
		}

		start := time.Now()
		switch err := s.register(c, strings.TrimSpace(line)); err {
		case nil:
			MessagesTotal.WithLabelValues("register").Inc()
			EventProcessingDuration.WithLabelValues("register").Observe(time.Since(start).Seconds())
			return nil
		case ErrUsernameTaken:
			prompt = PromptTaken
		default:
			prompt = PromptInvalid
		}
	}
}

func (s *Server) register(c *Client, username string) error {
	if err := validateUsername(username, s.cfg.MaxUsernameLength); err != nil {
		return err
	}
	if !s.reg.TryRegister(c, username) {
		return ErrUsernameTaken
	}
	return nil
}

func validateUsername(username string, maxLen int) error {
	if username == "" || (maxLen > 0 && utf8.RuneCountInString(username) > maxLen) {
		return ErrUsernameInvalid
	}
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err == nil {
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF && line != "" {
		// last line without newline
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF {
		return "", io.EOF
	}
	return "", fmt.Errorf("read: %w", err)
}

// isDisconnect reports errors that are an ordinary end of session.
func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, ErrSessionClosed)
}

func remoteAddr(conn net.Conn) string {
	if conn == nil || conn.RemoteAddr() == nil {
		return ""
	}
	return conn.RemoteAddr().String()
}
