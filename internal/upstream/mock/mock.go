// Package mock provides in-memory fakes for the upstream interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/upstream"
)

// Dialer implements upstream.Dialer. Each Connect returns a fresh Conn
// unless ConnectError is set.
type Dialer struct {
	// ConnectError, when set, is returned by Connect.
	ConnectError error

	mu      sync.Mutex
	conns   []*Conn
	configs []upstream.SessionConfig
}

var _ upstream.Dialer = (*Dialer)(nil)

func (d *Dialer) Connect(ctx context.Context, cfg upstream.SessionConfig) (upstream.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ConnectError != nil {
		return nil, d.ConnectError
	}
	c := NewConn()
	d.conns = append(d.conns, c)
	d.configs = append(d.configs, cfg)
	return c, nil
}

// Conns returns every Conn handed out so far, in connect order.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Configs returns the SessionConfig of every Connect call.
func (d *Dialer) Configs() []upstream.SessionConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]upstream.SessionConfig(nil), d.configs...)
}

// Conn implements upstream.Conn. Tests feed inbound events through
// EmitEvent and inspect recorded outbound calls.
type Conn struct {
	// WriteError, when set, is returned by all outbound calls.
	WriteError error

	mu         sync.Mutex
	events     chan upstream.Event
	closed     bool
	appended   []string
	texts      []string
	commits    int
	responses  int
	cancels    int
	closeCalls int
}

var _ upstream.Conn = (*Conn)(nil)

// NewConn returns a ready-to-use mock session.
func NewConn() *Conn {
	return &Conn{events: make(chan upstream.Event, 64)}
}

func (c *Conn) AppendAudio(chunk string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteError != nil {
		return c.WriteError
	}
	c.appended = append(c.appended, chunk)
	return nil
}

func (c *Conn) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteError != nil {
		return c.WriteError
	}
	c.commits++
	return nil
}

func (c *Conn) CreateResponse() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteError != nil {
		return c.WriteError
	}
	c.responses++
	return nil
}

func (c *Conn) CancelResponse() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteError != nil {
		return c.WriteError
	}
	c.cancels++
	return nil
}

func (c *Conn) SendUserText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteError != nil {
		return c.WriteError
	}
	c.texts = append(c.texts, text)
	return nil
}

func (c *Conn) Events() <-chan upstream.Event { return c.events }

func (c *Conn) Err() error { return nil }

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

// EmitEvent delivers one inbound event to the session consumer.
func (c *Conn) EmitEvent(evt upstream.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- evt
}

// Appended returns every audio chunk forwarded so far.
func (c *Conn) Appended() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.appended...)
}

// Texts returns every typed message forwarded so far.
func (c *Conn) Texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

// Commits reports how many turn commits were issued.
func (c *Conn) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

// Responses reports how many response.create calls were issued.
func (c *Conn) Responses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responses
}

// Cancels reports how many response cancellations were issued.
func (c *Conn) Cancels() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancels
}

// Closed reports whether the session has been closed.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
