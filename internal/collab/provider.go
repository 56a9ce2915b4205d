package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"knowspace/api/internal/logging"
	"knowspace/api/internal/objstore"
)

var (
	// ErrNotFound is returned by Snapshot when no live or stored document exists.
	ErrNotFound = errors.New("document not found")
	// ErrClosed is returned by operations on a disconnected connection.
	ErrClosed = errors.New("connection closed")
)

// StateKey is the object storage key holding the snapshot of document id.
func StateKey(id string) string {
	return "state/" + id
}

// Context identifies who opened a connection and for what.
type Context struct {
	User       string
	Entity     any
	EntityType string
}

type session struct {
	mu    sync.Mutex // serializes commit+persist so snapshots land in order
	doc   *Document
	conns map[*Connection]struct{}
}

// Provider keeps one live document per id and persists it to object storage
// after every committed transaction.
type Provider struct {
	store  objstore.Store
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func NewProvider(store objstore.Store, logger *zap.Logger) *Provider {
	return &Provider{
		store:    store,
		logger:   logging.OrNop(logger).Named("collab"),
		sessions: make(map[string]*session),
	}
}

// OpenDirectConnection attaches a server-side connection to document id,
// loading its stored snapshot on first open.
func (p *Provider) OpenDirectConnection(ctx context.Context, id string, cctx Context) (*Connection, error) {
	if id == "" {
		return nil, errors.New("document id is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[id]
	if !ok {
		doc, err := p.load(ctx, id)
		if err != nil {
			return nil, err
		}
		s = &session{doc: doc, conns: make(map[*Connection]struct{})}
		p.sessions[id] = s
	}

	conn := &Connection{provider: p, id: id, ctx: cctx, session: s}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	n := len(s.conns)
	s.mu.Unlock()
	p.logger.Debug("connection opened",
		zap.String("documentId", id),
		zap.String("user", cctx.User),
		zap.String("entityType", cctx.EntityType),
		zap.Int("connections", n),
	)
	return conn, nil
}

func (p *Provider) load(ctx context.Context, id string) (*Document, error) {
	data, err := p.store.GetObject(ctx, StateKey(id))
	if errors.Is(err, objstore.ErrNotFound) {
		return NewDocument(id), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	doc.id = id
	return doc, nil
}

// Close evicts document id and detaches every connection to it. It is a
// no-op for ids without a live session.
func (p *Provider) Close(id string) {
	p.mu.Lock()
	s, ok := p.sessions[id]
	delete(p.sessions, id)
	p.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	n := len(s.conns)
	for conn := range s.conns {
		conn.closed = true
	}
	s.conns = map[*Connection]struct{}{}
	s.mu.Unlock()
	p.logger.Debug("session closed", zap.String("documentId", id), zap.Int("connections", n))
}

// Snapshot returns the content of document id, live if a session is open,
// otherwise from object storage.
func (p *Provider) Snapshot(ctx context.Context, id string) (map[string]any, error) {
	p.mu.Lock()
	s, ok := p.sessions[id]
	p.mu.Unlock()
	if ok {
		return s.doc.ToJSON(), nil
	}

	data, err := p.store.GetObject(ctx, StateKey(id))
	if errors.Is(err, objstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	return doc.ToJSON(), nil
}

// Sessions reports the number of documents held in memory.
func (p *Provider) Sessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

func (p *Provider) detach(c *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c.session.mu.Lock()
	delete(c.session.conns, c)
	remaining := len(c.session.conns)
	c.session.mu.Unlock()

	if remaining == 0 && p.sessions[c.id] == c.session {
		delete(p.sessions, c.id)
	}
	p.logger.Debug("connection closed", zap.String("documentId", c.id), zap.Int("connections", remaining))
}

// Connection is one participant's handle on a shared document.
type Connection struct {
	provider *Provider
	id       string
	ctx      Context
	session  *session
	closed   bool // guarded by session.mu
}

func (c *Connection) Document() *Document { return c.session.doc }

func (c *Connection) Context() Context { return c.ctx }

// Transact commits fn to the shared document and persists the resulting
// snapshot. A failed persist leaves the in-memory commit in place.
func (c *Connection) Transact(ctx context.Context, fn func(tx *Txn)) error {
	s := c.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	before := s.doc.Version()
	if err := s.doc.Transact(fn); err != nil {
		return err
	}
	if s.doc.Version() == before {
		return nil
	}

	data, err := s.doc.Snapshot()
	if err != nil {
		return err
	}
	if err := c.provider.store.PutObject(ctx, StateKey(c.id), data, "application/json"); err != nil {
		return fmt.Errorf("persist document %s: %w", c.id, err)
	}
	return nil
}

// Disconnect detaches the connection. The last disconnect evicts the
// document from memory; its snapshot stays in object storage.
func (c *Connection) Disconnect() {
	c.session.mu.Lock()
	if c.closed {
		c.session.mu.Unlock()
		return
	}
	c.closed = true
	c.session.mu.Unlock()
	c.provider.detach(c)
}
