package chat

import (
	"net"
	"sync"

	"github.com/google/uuid"
)

// Client is the server side of one connection. Username is empty until the
// handshake succeeds and never changes afterwards.
type Client struct {
	ID   string
	Conn net.Conn
	Out  chan string // outbound lines, drained by the writer goroutine

	name      string // guarded by Registry.mu while being bound
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(conn net.Conn, queue int) *Client {
	if queue <= 0 {
		queue = 32
	}
	return &Client{
		ID:   uuid.NewString(),
		Conn: conn,
		Out:  make(chan string, queue),
		done: make(chan struct{}),
	}
}

func (c *Client) Username() string { return c.name }

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} { return c.done }

type MessageKind int

const (
	KindBroadcast MessageKind = iota
	KindDirect
	KindListUsers
)

func (k MessageKind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindListUsers:
		return "users"
	default:
		return "broadcast"
	}
}

// Message is one parsed inbound line.
type Message struct {
	Kind   MessageKind
	Target string // KindDirect only
	Body   string
}

var (
	ErrUsernameTaken   = errorString("username_taken")
	ErrUsernameInvalid = errorString("username_invalid")
	ErrSessionClosed   = errorString("session_closed")
	ErrOutboundFull    = errorString("outbound_full")
	ErrServerClosed    = errorString("server_closed")
)

type errorString string

func (e errorString) Error() string { return string(e) }
