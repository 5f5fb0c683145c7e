package chat

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Addr = "127.0.0.1:0"
	srv := NewServer(cfg, discardLogger())
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

type testClient struct {
	conn net.Conn
	r    *bufio.Reader
}

// login dials the server and completes the name handshake.
func login(t *testing.T, addr, name string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	c := &testClient{conn: conn, r: bufio.NewReader(conn)}
	c.expect(t, "Please enter your name:")
	c.send(t, name)
	c.expect(t, "Welcome "+name+"!")
	return c
}

func (c *testClient) send(t *testing.T, line string) {
	t.Helper()
	require.NoError(t, c.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (c *testClient) expect(t *testing.T, want string) {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := c.r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, want, strings.TrimRight(line, "\r\n"))
}

func TestServerTwoPartyChat(t *testing.T) {
	srv := startTestServer(t, Config{})
	addr := srv.Addr().String()

	alice := login(t, addr, "alice")
	bob := login(t, addr, "bob")
	alice.expect(t, "bob joined the chat.")

	alice.send(t, "hi")
	bob.expect(t, "alice:hi")

	// Alice never hears her own chat back: her next delivery is bob's
	// reply.
	bob.send(t, "hello")
	alice.expect(t, "bob:hello")
}

func TestServerCleanLeave(t *testing.T) {
	srv := startTestServer(t, Config{})
	addr := srv.Addr().String()

	alice := login(t, addr, "alice")
	bob := login(t, addr, "bob")
	alice.expect(t, "bob joined the chat.")

	// Bob half-closes so the farewell can still reach him.
	require.NoError(t, bob.conn.(*net.TCPConn).CloseWrite())

	bob.expect(t, "Bye!")
	alice.expect(t, "bob left the chat.")

	// Bye! is the final line on bob's stream.
	require.NoError(t, bob.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := bob.r.ReadString('\n')
	require.Error(t, err)
}

func TestServerAllowsDuplicateNames(t *testing.T) {
	srv := startTestServer(t, Config{})
	addr := srv.Addr().String()

	first := login(t, addr, "alice")
	second := login(t, addr, "alice")

	// The namesake's join is a plain join for the first alice, not a
	// welcome, and her chats come through.
	first.expect(t, "alice joined the chat.")
	second.send(t, "yo")
	first.expect(t, "alice:yo")

	first.send(t, "yo yourself")
	second.expect(t, "alice:yo yourself")
}

func TestServerBusFabricEndToEnd(t *testing.T) {
	srv := startTestServer(t, Config{Fabric: FabricBus})
	addr := srv.Addr().String()

	alice := login(t, addr, "alice")
	bob := login(t, addr, "bob")
	alice.expect(t, "bob joined the chat.")

	alice.send(t, "hi")
	bob.expect(t, "alice:hi")
	bob.send(t, "hello")
	alice.expect(t, "bob:hello")

	require.NoError(t, bob.conn.(*net.TCPConn).CloseWrite())
	bob.expect(t, "Bye!")
	alice.expect(t, "bob left the chat.")
}

func TestServerStopDrainsSessions(t *testing.T) {
	cfg := Config{Addr: "127.0.0.1:0"}
	srv := NewServer(cfg, discardLogger())
	require.NoError(t, srv.Start())
	addr := srv.Addr().String()

	login(t, addr, "alice")

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		srv.Stop()
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not drain sessions")
	}
	require.Zero(t, srv.Fabric().Peers())

	_, err := net.Dial("tcp", addr)
	require.Error(t, err, "listener is closed after Stop")
}
