package device

import (
	"context"
	"sync"
)

// Transport is an open publish/subscribe session with one appliance.
//
// Implementations must allow Publish from multiple goroutines. The
// handler passed to Subscribe may be called from a transport-owned
// goroutine and must not block.
type Transport interface {
	Subscribe(topic string, handler func(payload []byte)) error
	Publish(topic string, payload []byte) error
	IsConnected() bool
	Close() error
}

// DialOptions are the session parameters for one appliance.
type DialOptions struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, opts DialOptions) (Transport, error)
}

// session is a live transport plus its receive goroutine.
type session struct {
	transport Transport
	inbox     *inbox
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// start launches the receive goroutine, which hands every queued payload
// to handle in arrival order until stop is called.
func (s *session) start(handle func(payload []byte)) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.inbox.ready():
				for _, payload := range s.inbox.drain() {
					if ctx.Err() != nil {
						return
					}
					handle(payload)
				}
			}
		}
	}()
}

// stop cancels the receive goroutine, waits for it, then closes the transport.
func (s *session) stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return s.transport.Close()
}

// inbox is an unbounded FIFO between the transport callback and the
// receive goroutine. push never blocks.
type inbox struct {
	mu     sync.Mutex
	queue  [][]byte
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{signal: make(chan struct{}, 1)}
}

// push appends a copy of payload and wakes the receiver.
func (q *inbox) push(payload []byte) {
	buf := append([]byte(nil), payload...)

	q.mu.Lock()
	q.queue = append(q.queue, buf)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *inbox) ready() <-chan struct{} {
	return q.signal
}

// drain removes and returns everything queued.
func (q *inbox) drain() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.queue
	q.queue = nil
	return out
}
