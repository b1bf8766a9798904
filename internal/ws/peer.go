package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/Shepherd/backend/internal/shared/id"
)

// peer is one tenant socket. Writes go through send so that only writePump
// touches the connection's writer.
type peer struct {
	id     id.ConnID
	tenant string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once

	mu sync.Mutex
	// nil until the first subscribe; an empty set means everything
	subs map[string]struct{}
}

func newPeer(tenant string, conn *websocket.Conn) *peer {
	return &peer{
		id:     id.NewConnID(),
		tenant: tenant,
		ws:     conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (p *peer) writePump(logger *zap.Logger) {
	for {
		select {
		case msg := <-p.send:
			p.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("websocket write failed", zap.String("conn_id", p.id.String()), zap.Error(err))
				p.ws.Close()
				return
			}
		case <-p.done:
			return
		}
	}
}

// enqueue hands msg to the writer, dropping it when the buffer is full
func (p *peer) enqueue(msg []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- msg:
		return true
	default:
		return false
	}
}

func (p *peer) stop() {
	p.once.Do(func() { close(p.done) })
}

// subscribe replaces the subscription set from a JSON events array and
// returns the accepted event names
func (p *peer) subscribe(raw any) []string {
	list, _ := raw.([]any)
	events := make([]string, 0, len(list))
	subs := make(map[string]struct{}, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok && s != "" {
			if _, dup := subs[s]; !dup {
				subs[s] = struct{}{}
				events = append(events, s)
			}
		}
	}

	p.mu.Lock()
	p.subs = subs
	p.mu.Unlock()
	return events
}

func (p *peer) wants(eventType string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.subs) == 0 {
		return true
	}
	if _, ok := p.subs["*"]; ok {
		return true
	}
	_, ok := p.subs[eventType]
	return ok
}
