package fetch_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cesarachcar/scraper-emails-papers/internal/fetch"
)

func testClient(t *testing.T, cfg fetch.Config) *fetch.Client {
	t.Helper()
	return fetch.NewClient(cfg, nil)
}

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse %s: %v", rawURL, err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("port of %s: %v", rawURL, err)
	}
	return u.Hostname(), port
}

func TestGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-fake"))
	}))
	defer srv.Close()

	resp, err := testClient(t, fetch.Config{}).Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != "%PDF-fake" {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.Header.Get("Content-Type") != "application/pdf" {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
	if resp.FinalHost != "127.0.0.1" {
		t.Errorf("FinalHost = %q, want 127.0.0.1", resp.FinalHost)
	}
}

func TestGetNonOKStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resp, err := testClient(t, fetch.Config{}).Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", resp.StatusCode)
	}
}

func TestGetTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := testClient(t, fetch.Config{Timeout: 50 * time.Millisecond}).Get(context.Background(), srv.URL)

	var ferr *fetch.Error
	if !errors.As(err, &ferr) {
		t.Fatalf("Get() error = %v, want *fetch.Error", err)
	}
	if ferr.Kind != fetch.KindTimeout {
		t.Errorf("Kind = %q, want %q", ferr.Kind, fetch.KindTimeout)
	}
}

func TestGetConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = testClient(t, fetch.Config{}).Get(context.Background(), "http://"+addr)

	var ferr *fetch.Error
	if !errors.As(err, &ferr) {
		t.Fatalf("Get() error = %v, want *fetch.Error", err)
	}
	if ferr.Kind != fetch.KindConnection {
		t.Errorf("Kind = %q, want %q", ferr.Kind, fetch.KindConnection)
	}
}

func TestGetTrustFailure(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("secure"))
	}))
	defer srv.Close()

	_, err := testClient(t, fetch.Config{}).Get(context.Background(), srv.URL)

	var ferr *fetch.Error
	if !errors.As(err, &ferr) {
		t.Fatalf("Get() error = %v, want *fetch.Error", err)
	}
	if ferr.Kind != fetch.KindTrust {
		t.Errorf("Kind = %q, want %q", ferr.Kind, fetch.KindTrust)
	}
}

func TestGetBodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	_, err := testClient(t, fetch.Config{MaxBodyBytes: 1024}).Get(context.Background(), srv.URL)
	if !errors.Is(err, fetch.ErrBodyTooLarge) {
		t.Fatalf("Get() error = %v, want ErrBodyTooLarge", err)
	}
}

func TestGetSendsConfiguredHeaders(t *testing.T) {
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := testClient(t, fetch.Config{Headers: map[string]string{"User-Agent": "harvest-test"}})
	if _, err := client.Get(context.Background(), srv.URL); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if gotAgent != "harvest-test" {
		t.Errorf("User-Agent = %q, want harvest-test", gotAgent)
	}
}

func TestEscalateThenRetrySucceeds(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	host, port := hostPort(t, srv.URL)
	escalator := fetch.NewEscalator(nil)

	material, err := escalator.Escalate(context.Background(), host, port)
	if err != nil {
		t.Fatalf("Escalate() error = %v", err)
	}
	if material.Host != host {
		t.Errorf("Host = %q, want %q", material.Host, host)
	}
	if len(material.Chain) == 0 {
		t.Fatal("Escalate() captured empty chain")
	}

	resp, err := testClient(t, fetch.Config{}).GetWithRoots(context.Background(), srv.URL, material.Pool())
	if err != nil {
		t.Fatalf("GetWithRoots() error = %v", err)
	}
	if string(resp.Body) != "recovered" {
		t.Errorf("Body = %q, want recovered", resp.Body)
	}
}

func TestEscalateCachesPerHost(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	host, port := hostPort(t, srv.URL)

	escalator := fetch.NewEscalator(nil)
	first, err := escalator.Escalate(context.Background(), host, port)
	if err != nil {
		t.Fatalf("Escalate() error = %v", err)
	}

	// Second call must not dial again: kill the server first.
	srv.Close()

	second, err := escalator.Escalate(context.Background(), host, port)
	if err != nil {
		t.Fatalf("Escalate() after server close error = %v", err)
	}
	if first != second {
		t.Error("second Escalate() did not reuse cached material")
	}
}

// silentListener accepts TCP connections and never speaks TLS,
// counting accepts. Connections are held open until the test ends.
func silentListener(t *testing.T) (net.Listener, *atomic.Int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	var (
		accepts atomic.Int32
		mu      sync.Mutex
		conns   []net.Conn
	)
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			conn.Close()
		}
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepts.Add(1)
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	return ln, &accepts
}

func TestEscalateBoundsHangingHandshake(t *testing.T) {
	ln, _ := silentListener(t)
	host, port := hostPort(t, "http://"+ln.Addr().String())

	escalator := fetch.NewEscalator(nil, fetch.WithHandshakeTimeout(100*time.Millisecond))

	start := time.Now()
	_, err := escalator.Escalate(context.Background(), host, port)
	if !errors.Is(err, fetch.ErrEscalation) {
		t.Errorf("Escalate() error = %v, want ErrEscalation", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Escalate() against a silent host took %v, want bounded by handshake timeout", elapsed)
	}
}

func TestEscalateHangingHostDoesNotBlockOthers(t *testing.T) {
	ln, _ := silentListener(t)
	hangHost, hangPort := hostPort(t, "http://"+ln.Addr().String())

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	host, port := hostPort(t, srv.URL)

	escalator := fetch.NewEscalator(nil, fetch.WithHandshakeTimeout(5*time.Second))

	// The hanging probe resolves once the test's cleanup closes its
	// connection; it must not delay the healthy host below.
	go escalator.Escalate(context.Background(), hangHost, hangPort)
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	if _, err := escalator.Escalate(context.Background(), host, port); err != nil {
		t.Fatalf("Escalate() healthy host error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("healthy-host Escalate() took %v while another host's handshake hangs", elapsed)
	}
}

func TestEscalateCachesFailurePerHost(t *testing.T) {
	ln, accepts := silentListener(t)
	host, port := hostPort(t, "http://"+ln.Addr().String())

	escalator := fetch.NewEscalator(nil, fetch.WithHandshakeTimeout(100*time.Millisecond))

	first, err := escalator.Escalate(context.Background(), host, port)
	if first != nil || !errors.Is(err, fetch.ErrEscalation) {
		t.Fatalf("Escalate() = %v, %v, want nil, ErrEscalation", first, err)
	}

	second, err2 := escalator.Escalate(context.Background(), host, port)
	if second != nil || !errors.Is(err2, fetch.ErrEscalation) {
		t.Fatalf("second Escalate() = %v, %v, want nil, ErrEscalation", second, err2)
	}
	if got := accepts.Load(); got != 1 {
		t.Errorf("host dialed %d times, want 1", got)
	}
}

func TestEscalateFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	host, port := hostPort(t, "http://"+ln.Addr().String())
	ln.Close()

	_, err = fetch.NewEscalator(nil).Escalate(context.Background(), host, port)
	if !errors.Is(err, fetch.ErrEscalation) {
		t.Errorf("Escalate() error = %v, want ErrEscalation", err)
	}
}

func TestEscalatePersistsChain(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	host, port := hostPort(t, srv.URL)
	dir := t.TempDir()

	escalator := fetch.NewEscalator(nil, fetch.WithChainDir(dir))
	material, err := escalator.Escalate(context.Background(), host, port)
	if err != nil {
		t.Fatalf("Escalate() error = %v", err)
	}

	path := filepath.Join(dir, "fullchain_"+host+".pem")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if string(data) != string(material.PEM()) {
		t.Error("persisted PEM does not match captured chain")
	}
}
