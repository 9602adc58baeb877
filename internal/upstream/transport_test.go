package upstream

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// serveSOCKS5 runs a minimal no-auth SOCKS5 CONNECT server for tests and
// counts the tunnels it opened.
func serveSOCKS5(t *testing.T) (string, *atomic.Int32) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to start SOCKS5 server: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	var tunnels atomic.Int32
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				target, err := socks5Handshake(conn)
				if err != nil {
					return
				}
				upstream, err := net.Dial("tcp", target) //nolint:noctx // test code
				if err != nil {
					_, _ = conn.Write([]byte{0x05, 0x05, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
					return
				}
				defer upstream.Close()
				tunnels.Add(1)
				_, _ = conn.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
				go func() { _, _ = io.Copy(upstream, conn) }()
				_, _ = io.Copy(conn, upstream)
			}()
		}
	}()
	return listener.Addr().String(), &tunnels
}

func socks5Handshake(conn net.Conn) (string, error) {
	greeting := make([]byte, 2)
	if _, err := io.ReadFull(conn, greeting); err != nil {
		return "", err
	}
	if _, err := io.ReadFull(conn, make([]byte, greeting[1])); err != nil {
		return "", err
	}
	if _, err := conn.Write([]byte{0x05, 0x00}); err != nil {
		return "", err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return "", err
	}
	var host string
	switch header[3] {
	case 0x01:
		ip := make([]byte, 4)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return "", err
		}
		host = net.IP(ip).String()
	case 0x03:
		n := make([]byte, 1)
		if _, err := io.ReadFull(conn, n); err != nil {
			return "", err
		}
		name := make([]byte, n[0])
		if _, err := io.ReadFull(conn, name); err != nil {
			return "", err
		}
		host = string(name)
	default:
		return "", errors.New("unsupported address type")
	}
	port := make([]byte, 2)
	if _, err := io.ReadFull(conn, port); err != nil {
		return "", err
	}
	return net.JoinHostPort(host, strconv.Itoa(int(binary.BigEndian.Uint16(port)))), nil
}

func TestSOCKS5Transport(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "via socks")
	}))
	t.Cleanup(server.Close)

	addr, tunnels := serveSOCKS5(t)
	transport, err := SOCKS5(addr)
	if err != nil {
		t.Fatalf("SOCKS5() error: %v", err)
	}
	client := &http.Client{Transport: transport, Timeout: 5 * time.Second}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if string(body) != "via socks" {
		t.Errorf("body = %q", body)
	}
	if tunnels.Load() != 1 {
		t.Errorf("tunnels = %d, want 1", tunnels.Load())
	}
}

func TestSOCKS5InvalidAddress(t *testing.T) {
	t.Parallel()

	testCases := []string{"", "127.0.0.1", ":9050", "host:0", "host:70000", "host:abc"}
	for _, addr := range testCases {
		t.Run(addr, func(t *testing.T) {
			t.Parallel()
			if _, err := SOCKS5(addr); !errors.Is(err, ErrInvalidProxyAddress) {
				t.Errorf("SOCKS5(%q) error = %v, want ErrInvalidProxyAddress", addr, err)
			}
		})
	}
}

func TestCheckSOCKS5(t *testing.T) {
	t.Parallel()

	t.Run("OK for SOCKS5 proxy", func(t *testing.T) {
		t.Parallel()
		addr, _ := serveSOCKS5(t)
		if status := CheckSOCKS5(context.Background(), addr); status != ProxyStatusOK {
			t.Errorf("status = %v, want OK", status)
		}
	})

	t.Run("CannotConnect for closed port", func(t *testing.T) {
		t.Parallel()
		listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatal(err)
		}
		addr := listener.Addr().String()
		listener.Close()

		if status := CheckSOCKS5(context.Background(), addr); status != ProxyStatusCannotConnect {
			t.Errorf("status = %v, want cannot connect", status)
		}
	})

	t.Run("WrongType for HTTP server", func(t *testing.T) {
		t.Parallel()
		listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatal(err)
		}
		defer listener.Close()
		go func() {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
		}()

		if status := CheckSOCKS5(context.Background(), listener.Addr().String()); status != ProxyStatusWrongType {
			t.Errorf("status = %v, want wrong type", status)
		}
	})
}

func TestWithHeaders(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Header.Get("X-Scanner"))
	}))
	t.Cleanup(server.Close)

	if rt := WithHeaders(Direct(), nil); rt == nil {
		t.Fatal("WithHeaders(nil) returned nil")
	}

	client := &http.Client{Transport: WithHeaders(Direct(), map[string]string{"X-Scanner": "scopecrawl"})}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Scanner", "browser")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "scopecrawl" {
		t.Errorf("X-Scanner = %q, want scopecrawl", body)
	}
	if req.Header.Get("X-Scanner") != "browser" {
		t.Error("original request was modified")
	}
}

func TestEmbeddedTorBeforeStart(t *testing.T) {
	t.Parallel()

	embedded := NewEmbeddedTor(WithStartupTimeout(time.Minute))
	if embedded.startupTimeout != time.Minute {
		t.Errorf("startupTimeout = %v, want 1m", embedded.startupTimeout)
	}
	if embedded.IsRunning() || embedded.SocksAddr() != "" {
		t.Error("expected unstarted daemon")
	}
	if err := embedded.Stop(); err != nil {
		t.Errorf("Stop() on unstarted daemon: %v", err)
	}
	if _, err := embedded.Transport(); !errors.Is(err, ErrTorNotRunning) {
		t.Errorf("Transport() error = %v, want ErrTorNotRunning", err)
	}
}

func TestProxyStatusString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		status   ProxyStatus
		expected string
	}{
		{ProxyStatusOK, "OK"},
		{ProxyStatusWrongType, "wrong type (not SOCKS5)"},
		{ProxyStatusCannotConnect, "cannot connect"},
		{ProxyStatusTimeout, "timeout"},
		{ProxyStatus(42), "unknown"},
	}
	for _, tc := range testCases {
		if got := tc.status.String(); got != tc.expected {
			t.Errorf("String() = %q, want %q", got, tc.expected)
		}
	}
}
