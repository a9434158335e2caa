package utils

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// minThroughputBytesPerSecond is the floor a client must sustain (4KB/s).
// Deadlines scale with bytes transferred so that large chunk bodies on
// slow links are not cut off by a fixed timeout.
const minThroughputBytesPerSecond = 4000

// Listener wraps a net.Listener and stamps every accepted connection
// with throughput-scaled read/write deadlines.
type Listener struct {
	net.Listener
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (l *Listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &Conn{
		Conn:         c,
		ReadTimeout:  l.ReadTimeout,
		WriteTimeout: l.WriteTimeout,
	}, nil
}

// Conn wraps a net.Conn and refreshes the deadline on every read and
// write, stretched by how much data has already moved.
type Conn struct {
	net.Conn
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	bytesRead    int64
	bytesWritten int64
}

// deadlineFor scales the base timeout by the cumulative byte count:
// with a 30s timeout the client gets 30s per 120KB already transferred,
// so a 5MB chunk body has on the order of 20 minutes to arrive in full
// while an idle connection still dies after 30s.
func deadlineFor(base time.Duration, transferred int64) time.Duration {
	bytesPerTimeout := int64(float64(minThroughputBytesPerSecond) * base.Seconds())
	if bytesPerTimeout <= 0 {
		bytesPerTimeout = 1
	}
	return base * time.Duration(transferred/bytesPerTimeout+1)
}

func (c *Conn) Read(b []byte) (count int, e error) {
	if c.ReadTimeout != 0 {
		err := c.Conn.SetReadDeadline(time.Now().Add(deadlineFor(c.ReadTimeout, c.bytesRead)))
		if err != nil {
			return 0, err
		}
	}
	count, e = c.Conn.Read(b)
	if e == nil {
		c.bytesRead += int64(count)
	}
	return
}

func (c *Conn) Write(b []byte) (count int, e error) {
	if c.WriteTimeout != 0 {
		err := c.Conn.SetWriteDeadline(time.Now().Add(deadlineFor(c.WriteTimeout, c.bytesWritten)))
		if err != nil {
			return 0, err
		}
	}
	count, e = c.Conn.Write(b)
	if e == nil {
		c.bytesWritten += int64(count)
	}
	return
}

func NewListener(addr string, timeout time.Duration) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &Listener{
		Listener:     listener,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}, nil
}

func JoinHostPort(host string, port int) string {
	portStr := strconv.Itoa(port)
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return host + ":" + portStr
	}
	return net.JoinHostPort(host, portStr)
}
