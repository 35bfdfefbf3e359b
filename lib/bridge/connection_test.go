package bridge

import (
	"bytes"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sourcemud/mud-telnet/lib/protocol"
	"github.com/sourcemud/mud-telnet/lib/telnet"
	"github.com/sourcemud/mud-telnet/lib/util"
)

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// clientReader drains one end of a connection in the background.
type clientReader struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	done chan struct{}
}

func readClient(conn net.Conn) *clientReader {
	r := &clientReader{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				r.mu.Lock()
				r.buf.Write(buf[:n])
				r.mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	return r
}

func (r *clientReader) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func (r *clientReader) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(r.String(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q, have %q", want, r.String())
}

func (r *clientReader) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(3 * time.Second):
		t.Fatal("connection not closed")
	}
}

func newPipeConnection(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })

	c := NewConnection(server, time.Second, discardLogger())
	c.Attach(telnet.Options{Config: telnet.DefaultConfig()})
	return c, client
}

func TestConnection_SendBeforeAttach(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := NewConnection(server, 0, discardLogger())
	if err := c.Send("x"); err != util.ErrSessionClosed {
		t.Errorf("Send() before Attach = %v, want ErrSessionClosed", err)
	}
	if c.ID() != "" {
		t.Errorf("ID() before Attach = %q, want empty", c.ID())
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() before Attach = %v", err)
	}
}

func TestConnection_ReactorDeliversMail(t *testing.T) {
	c, client := newPipeConnection(t)
	r := readClient(client)

	done := make(chan error, 1)
	go func() { done <- c.serve(20*time.Millisecond, 1024) }()

	r.waitFor(t, string([]byte{protocol.IAC, protocol.WILL, protocol.OptEOR}))

	if err := c.Send("news from elsewhere\n"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	r.waitFor(t, "news from elsewhere\r\n")

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve() error = %v, want nil after Close", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("serve() did not return after Close")
	}
	r.waitClosed(t)

	if err := c.Send("late"); err != util.ErrSessionClosed {
		t.Errorf("Send() after Close = %v, want ErrSessionClosed", err)
	}
}

func TestConnection_ReactorProcessesInput(t *testing.T) {
	c, client := newPipeConnection(t)
	r := readClient(client)

	go func() { _ = c.serve(20*time.Millisecond, 1024) }()
	defer c.Close()

	// With no mode installed every line is a telnet command.
	if _, err := client.Write([]byte("!help\n")); err != nil {
		t.Fatalf("client Write() error = %v", err)
	}
	r.waitFor(t, "Telnet commands:")
}

func TestConnection_Do(t *testing.T) {
	c, client := newPipeConnection(t)
	r := readClient(client)

	err := c.Do(func(s *telnet.Session) {
		_, _ = s.WriteString("direct\n")
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	r.waitFor(t, "direct\r\n")

	_ = c.Close()
	if err := c.Do(func(*telnet.Session) {}); err != util.ErrSessionClosed {
		t.Errorf("Do() after Close = %v, want ErrSessionClosed", err)
	}
}

func TestConnection_ReadErrorEndsReactor(t *testing.T) {
	c, client := newPipeConnection(t)
	_ = readClient(client)

	done := make(chan error, 1)
	go func() { done <- c.serve(20*time.Millisecond, 1024) }()

	time.Sleep(50 * time.Millisecond)
	_ = client.Close()

	select {
	case err := <-done:
		if !util.IsFatal(err) {
			t.Errorf("serve() error = %v, want a fatal transport error", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("serve() did not return after the client hung up")
	}
}
