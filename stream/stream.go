package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/log"
	"github.com/nsepulse/pulse/model"
	"github.com/nsepulse/pulse/pubsub"
	"github.com/nsepulse/pulse/store"
)

// Stream pushes the snapshots of one market to its connections. A new
// connection first receives the latest known snapshot.
type Stream interface {
	CreateConnection(ctx context.Context) *Connection
	CloseConnection(conn *Connection)
	Close()
}

type connEstablished struct {
	conn    *Connection
	initial *model.Snapshot
}

type stream struct {
	market      model.Market
	store       store.Store
	publisher   pubsub.Publisher[model.Update]
	updates     chan model.Update
	established chan *connEstablished
	closed      chan *Connection
	stop        chan struct{}
	stopOnce    sync.Once
	connections map[*Connection]struct{}
	last        *model.Snapshot
	telemetry   telemetry.Reporter
	log         log.Logger
	streamType  string
}

func NewStream(market model.Market, st store.Store, publisher pubsub.Publisher[model.Update], telemetryReporter telemetry.Reporter, log log.Logger, streamType string) Stream {
	s := &stream{
		market:      market,
		store:       st,
		publisher:   publisher,
		updates:     make(chan model.Update, 8),
		established: make(chan *connEstablished),
		closed:      make(chan *Connection),
		stop:        make(chan struct{}),
		connections: make(map[*Connection]struct{}),
		telemetry:   telemetryReporter,
		log:         log.WithPrefix("stream-" + market.String()),
		streamType:  streamType,
	}
	publisher.Subscribe(s.updates)
	go s.run()
	return s
}

func (s *stream) run() {
	for {
		select {
		case established := <-s.established:
			s.connections[established.conn] = struct{}{}
			s.reportConnections()
			s.log.Debugf("#%s: connection established, all connections: %d", established.conn.id, len(s.connections))
			latest := s.last
			if latest == nil {
				latest = established.initial
			}
			if latest != nil {
				established.conn.receive <- latest
				s.telemetry.AddSentMessageCount(1, s.market.String(), s.streamType)
			}

		case conn := <-s.closed:
			if _, ok := s.connections[conn]; ok {
				delete(s.connections, conn)
				s.reportConnections()
				s.log.Debugf("#%s: connection closed, all connections: %d", conn.id, len(s.connections))
			}

		case update := <-s.updates:
			if update.Market != s.market || update.Snapshot == nil {
				continue
			}
			s.last = update.Snapshot
			s.notifyConnections()

		case <-s.stop:
			s.publisher.Unsubscribe(s.updates)
			return
		}
	}
}

func (s *stream) CreateConnection(ctx context.Context) *Connection {
	conn := newConnection()
	initial, err := s.store.Get(ctx, s.market)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.Warnf("failed to load the latest snapshot: %s", err)
	}
	select {
	case <-s.stop:
	case s.established <- &connEstablished{conn: conn, initial: initial}:
	}
	return conn
}

func (s *stream) CloseConnection(conn *Connection) {
	select {
	case <-s.stop:
	case s.closed <- conn:
	}
}

func (s *stream) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.log.Reportf("shutdown complete")
	})
}

func (s *stream) notifyConnections() {
	sent := 0
	for conn := range s.connections {
		select {
		case conn.receive <- s.last:
			sent++
		default:
			s.log.Debugf("#%s: connection is lagging behind, snapshot skipped", conn.id)
		}
	}
	if sent > 0 {
		s.telemetry.AddSentMessageCount(sent, s.market.String(), s.streamType)
		s.log.Debugf("snapshot sent to %d connection(s)", sent)
	}
}

func (s *stream) reportConnections() {
	s.telemetry.RecordConnections(int64(len(s.connections)), s.market.String(), s.streamType)
}
