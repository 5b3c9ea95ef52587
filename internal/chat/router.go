package chat

import (
	"errors"
	"log/slog"
	"strings"
	"time"
)

const CommandUsers = "/users"

// AuditLog receives one entry per delivered message.
type AuditLog interface {
	Append(username, text string)
}

// ParseMessage classifies one inbound line. "@target:body" is a direct
// message split at the first colon; an "@" line without a colon falls back
// to an ordinary broadcast of the whole line.
func ParseMessage(line string) Message {
	if line == CommandUsers {
		return Message{Kind: KindListUsers}
	}
	if strings.HasPrefix(line, "@") {
		if i := strings.IndexByte(line, ':'); i != -1 {
			return Message{
				Kind:   KindDirect,
				Target: strings.TrimSpace(line[1:i]),
				Body:   strings.TrimSpace(line[i+1:]),
			}
		}
	}
	return Message{Kind: KindBroadcast, Body: line}
}

// FormatUserList renders the reply to /users.
func FormatUserList(names []string) string {
	if len(names) == 0 {
		return "Active users:"
	}
	return "Active users: " + strings.Join(names, ", ")
}

// Router dispatches lines from registered clients.
type Router struct {
	reg    *Registry
	audit  AuditLog
	logger *slog.Logger
}

func NewRouter(reg *Registry, audit AuditLog, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{reg: reg, audit: audit, logger: logger}
}

func (rt *Router) Dispatch(sender *Client, line string) {
	start := time.Now()
	msg := ParseMessage(line)

	switch msg.Kind {
	case KindListUsers:
		rt.deliver(sender, FormatUserList(rt.reg.ListUsernames()))
	case KindDirect:
		rt.direct(sender, msg)
	default:
		rt.broadcast(sender, sender.Username()+": "+msg.Body)
		rt.audit.Append(sender.Username(), msg.Body)
	}

	kind := msg.Kind.String()
	MessagesTotal.WithLabelValues(kind).Inc()
	EventProcessingDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (rt *Router) direct(sender *Client, msg Message) {
	from := sender.Username()
	target, ok := rt.reg.Lookup(msg.Target)
	if !ok {
		rt.deliver(sender, "User "+msg.Target+" not found.")
		rt.audit.Append(from, "Private to "+msg.Target+" (not found): "+msg.Body)
		return
	}
	rt.deliver(target, "Private message from "+from+": "+msg.Body)
	rt.deliver(sender, "Private message to "+msg.Target+": "+msg.Body)
	rt.audit.Append(from, "Private to "+msg.Target+": "+msg.Body)
}

// AnnounceJoin tells everyone else that c has registered.
func (rt *Router) AnnounceJoin(c *Client) {
	rt.notice(c, c.Username()+" has joined the chat.", "join")
}

// AnnounceLeave tells everyone else that c is gone. c must already be
// unregistered so its name is free again.
func (rt *Router) AnnounceLeave(c *Client) {
	rt.notice(c, c.Username()+" has left the chat.", "leave")
}

func (rt *Router) notice(c *Client, text, kind string) {
	start := time.Now()
	rt.broadcast(c, text)
	rt.audit.Append(c.Username(), text)
	MessagesTotal.WithLabelValues(kind).Inc()
	EventProcessingDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (rt *Router) broadcast(sender *Client, line string) {
	rt.reg.ForEachExcept(sender, func(c *Client) {
		rt.deliver(c, line)
	})
}

// deliver never blocks; a recipient that cannot keep up is disconnected.
func (rt *Router) deliver(c *Client, line string) {
	if err := c.Send(line); errors.Is(err, ErrOutboundFull) {
		rt.logger.Warn("outbound queue full, disconnecting",
			"session", c.ID, "username", c.Username())
	}
}
