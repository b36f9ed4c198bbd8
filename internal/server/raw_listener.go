package server

import (
	"fmt"
	"net"

	"github.com/uatdecode/uatd/internal/wire"
)

// RawListener serves the raw text wire format to every TCP client that
// connects: each line is one decoded UAT frame in FormatFrame's key=value
// encoding.
type RawListener struct {
	dispatcher *Dispatcher
	listener   net.Listener
}

// ListenRaw opens a TCP listener at addr backed by d.
func ListenRaw(addr string, d *Dispatcher) (*RawListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &RawListener{dispatcher: d, listener: ln}, nil
}

// Addr returns the listener's bound address.
func (l *RawListener) Addr() net.Addr { return l.listener.Addr() }

// Close stops accepting new connections.
func (l *RawListener) Close() error { return l.listener.Close() }

// Serve accepts connections until the listener is closed.
func (l *RawListener) Serve() error {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			return err
		}
		go l.serveConn(conn)
	}
}

func (l *RawListener) serveConn(conn net.Conn) {
	defer conn.Close()
	sub := l.dispatcher.Subscribe()
	defer l.dispatcher.Unsubscribe(sub)
	for frame := range sub.Frames() {
		line := fmt.Sprintf("%s\n", wire.FormatFrame(frame.Raw))
		if _, err := conn.Write([]byte(line)); err != nil {
			return
		}
	}
}
