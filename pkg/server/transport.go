package server

import (
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pokerplan/pokerd/pkg/protocol"
)

// recordConn is one transport carrying the line protocol: a stream of
// inbound records and a sink of outbound records. Implementations are
// safe for one concurrent reader plus one concurrent writer, which is
// exactly how Session uses them.
type recordConn interface {
	ReadRecord() ([]byte, error)
	WriteRecord(record []byte) error
	Close() error
	RemoteAddr() string
}

// tcpRecordConn frames records as newline-delimited lines on a raw
// TCP connection.
type tcpRecordConn struct {
	conn   net.Conn
	reader *protocol.LineReader
	writer *protocol.LineWriter
	cfg    *SessionConfig
}

func newTCPRecordConn(conn net.Conn, cfg *SessionConfig) *tcpRecordConn {
	return &tcpRecordConn{
		conn:   conn,
		reader: protocol.NewLineReaderSize(conn, cfg.MaxRecordSize),
		writer: protocol.NewLineWriter(conn),
		cfg:    cfg,
	}
}

func (c *tcpRecordConn) ReadRecord() ([]byte, error) {
	if c.cfg.ReadTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	return c.reader.ReadRecord()
}

func (c *tcpRecordConn) WriteRecord(record []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.writer.WriteRecord(record)
}

func (c *tcpRecordConn) Close() error {
	return c.conn.Close()
}

func (c *tcpRecordConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// wsRecordConn frames records as WebSocket text messages, one record
// per message.
type wsRecordConn struct {
	conn *websocket.Conn
	cfg  *SessionConfig
}

func newWSRecordConn(conn *websocket.Conn, cfg *SessionConfig) *wsRecordConn {
	conn.SetReadLimit(int64(cfg.MaxRecordSize))
	return &wsRecordConn{conn: conn, cfg: cfg}
}

func (c *wsRecordConn) ReadRecord() ([]byte, error) {
	for {
		if c.cfg.ReadTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}
		kind, msg, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind != websocket.TextMessage || len(msg) == 0 {
			continue
		}
		return msg, nil
	}
}

func (c *wsRecordConn) WriteRecord(record []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, record)
}

func (c *wsRecordConn) Close() error {
	return c.conn.Close()
}

func (c *wsRecordConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
