package stream

import (
	"github.com/google/uuid"
	"github.com/nsepulse/pulse/model"
)

type Connection struct {
	receive chan *model.Snapshot
	id      string
}

func newConnection() *Connection {
	return &Connection{
		receive: make(chan *model.Snapshot, 16),
		id:      uuid.NewString(),
	}
}

func (conn *Connection) Receive() <-chan *model.Snapshot {
	return conn.receive
}

func (conn *Connection) Id() string {
	return conn.id
}
