package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dvmnet/go-dvm/models"
)

const dialTimeout = 10 * time.Second
const writeTimeout = 10 * time.Second

// Pool maintains one websocket connection per relay URL and multiplexes
// subscriptions over them. It implements models.RelayPool.
type Pool struct {
	logger models.Logger
	dialer *websocket.Dialer

	connLock sync.Mutex
	conns    map[string]*connection
}

func NewPool(logger models.Logger) *Pool {
	return &Pool{
		logger: logger,
		dialer: &websocket.Dialer{HandshakeTimeout: dialTimeout},
		conns:  make(map[string]*connection),
	}
}

// Publish fans the event out to every relay. Each relay send is best-effort;
// the publish fails only if no relay accepted the frame.
func (p *Pool) Publish(ctx context.Context, relays []string, event *models.Event) error {
	data, err := json.Marshal([]any{frameType_Event, event})
	if err != nil {
		return err
	}
	published := 0
	var lastErr error
	for _, url := range relays {
		conn, err := p.connect(ctx, url)
		if err != nil {
			p.logger.Warnf("relay: error connecting to %s: %v", url, err)
			lastErr = err
			continue
		}
		if err = conn.write(data); err != nil {
			p.logger.Warnf("relay: error publishing to %s: %v", url, err)
			lastErr = err
			continue
		}
		published++
	}
	if published == 0 {
		return fmt.Errorf("publish accepted by no relay: %w", lastErr)
	}
	return nil
}

// Subscribe opens one logical subscription replicated across the given relays.
// Relays that cannot be reached are skipped; the subscription fails only if no
// relay could be contacted.
func (p *Pool) Subscribe(ctx context.Context, relays []string, filter *models.Filter) (models.RelaySubscription, error) {
	sub := &poolSubscription{
		id:   uuid.NewString(),
		pool: p,
		ch:   make(chan models.RelayMessage, models.DefaultSubscriptionBuffer),
	}
	data, err := json.Marshal([]any{frameType_Req, sub.id, filter})
	if err != nil {
		return nil, err
	}
	var lastErr error
	for _, url := range relays {
		conn, err := p.connect(ctx, url)
		if err != nil {
			p.logger.Warnf("relay: error connecting to %s: %v", url, err)
			lastErr = err
			continue
		}
		conn.register(sub)
		if err = conn.write(data); err != nil {
			p.logger.Warnf("relay: error subscribing on %s: %v", url, err)
			conn.unregister(sub.id)
			lastErr = err
			continue
		}
		sub.conns = append(sub.conns, conn)
	}
	if len(sub.conns) == 0 {
		return nil, fmt.Errorf("subscribe reached no relay: %w", lastErr)
	}
	return sub, nil
}

func (p *Pool) Close() {
	p.connLock.Lock()
	defer p.connLock.Unlock()
	for url, conn := range p.conns {
		conn.close()
		delete(p.conns, url)
	}
}

func (p *Pool) connect(ctx context.Context, url string) (*connection, error) {
	p.connLock.Lock()
	defer p.connLock.Unlock()
	if conn, found := p.conns[url]; found {
		return conn, nil
	}
	ws, _, err := p.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn := &connection{
		url:    url,
		ws:     ws,
		logger: p.logger,
		pool:   p,
		subs:   make(map[string]*poolSubscription),
	}
	p.conns[url] = conn
	go conn.run()
	return conn, nil
}

func (p *Pool) drop(conn *connection) {
	p.connLock.Lock()
	defer p.connLock.Unlock()
	if current, found := p.conns[conn.url]; found && current == conn {
		delete(p.conns, conn.url)
	}
}

type connection struct {
	url    string
	ws     *websocket.Conn
	logger models.Logger
	pool   *Pool

	writeLock sync.Mutex
	subLock   sync.Mutex
	subs      map[string]*poolSubscription
}

func (c *connection) run() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Warnf("relay: connection to %s closed: %v", c.url, err)
			c.pool.drop(c)
			return
		}
		parsed, err := parseFrame(data)
		if err != nil {
			c.logger.Debugf("relay: dropping frame from %s: %v", c.url, err)
			continue
		}
		switch parsed.Type {
		case frameType_Event:
			if sub := c.lookup(parsed.SubId); sub != nil {
				sub.deliver(models.RelayMessage{Relay: c.url, Event: parsed.Event})
			}
		case frameType_Eose:
			if sub := c.lookup(parsed.SubId); sub != nil {
				sub.deliver(models.RelayMessage{Relay: c.url, EndOfStored: true})
			}
		case frameType_Notice:
			c.logger.Debugf("relay: notice from %s: %s", c.url, parsed.Message)
		}
	}
}

func (c *connection) write(data []byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *connection) close() {
	_ = c.ws.Close()
}

func (c *connection) register(sub *poolSubscription) {
	c.subLock.Lock()
	defer c.subLock.Unlock()
	c.subs[sub.id] = sub
}

func (c *connection) unregister(subId string) {
	c.subLock.Lock()
	defer c.subLock.Unlock()
	delete(c.subs, subId)
}

func (c *connection) lookup(subId string) *poolSubscription {
	c.subLock.Lock()
	defer c.subLock.Unlock()
	return c.subs[subId]
}

type poolSubscription struct {
	id   string
	pool *Pool
	ch   chan models.RelayMessage

	closeLock sync.Mutex
	closed    bool
	conns     []*connection
}

func (s *poolSubscription) Messages() <-chan models.RelayMessage {
	return s.ch
}

func (s *poolSubscription) deliver(msg models.RelayMessage) {
	s.closeLock.Lock()
	defer s.closeLock.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg:
	default:
		s.pool.logger.Warnf("relay: subscription %s buffer full, dropping message from %s", s.id, msg.Relay)
	}
}

// Close is idempotent and safe to call after the underlying relays have
// already gone away.
func (s *poolSubscription) Close() {
	s.closeLock.Lock()
	if s.closed {
		s.closeLock.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.closeLock.Unlock()

	data, err := json.Marshal([]any{frameType_Close, s.id})
	if err != nil {
		return
	}
	for _, conn := range s.conns {
		conn.unregister(s.id)
		if err = conn.write(data); err != nil {
			s.pool.logger.Debugf("relay: error closing subscription on %s: %v", conn.url, err)
		}
	}
}
