package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// DefaultHandshakeTimeout bounds a capture handshake against a host
// that accepts TCP but never completes TLS.
const DefaultHandshakeTimeout = 30 * time.Second

// TrustMaterial is a peer certificate chain captured as presented,
// without validation against any root store. It lives only as long as
// the single retry it enables, unless a chain directory persists it.
type TrustMaterial struct {
	Host  string
	Chain []*x509.Certificate
}

// Pool returns a cert pool containing every certificate in the chain.
func (m *TrustMaterial) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	for _, cert := range m.Chain {
		pool.AddCert(cert)
	}
	return pool
}

// PEM returns the chain encoded as a concatenated PEM bundle.
func (m *TrustMaterial) PEM() []byte {
	var out []byte
	for _, cert := range m.Chain {
		out = append(out, pem.EncodeToMemory(&pem.Block{
			Type:  "CERTIFICATE",
			Bytes: cert.Raw,
		})...)
	}
	return out
}

// Escalator captures certificate chains from hosts that fail standard
// verification. Each host is probed at most once per Escalator
// lifetime, success or failure; repeat requests for the same host
// reuse the first probe's result. This is a deliberate, single-retry
// weakening of transport security and must never become the default
// trust policy.
type Escalator struct {
	logger   *slog.Logger
	chainDir string
	timeout  time.Duration

	mu     sync.Mutex
	probes map[string]*probe
}

// probe holds one host's capture attempt. The zero value is armed;
// once.Do runs the handshake and every later caller reads the result.
type probe struct {
	once     sync.Once
	material *TrustMaterial
	err      error
}

// EscalatorOption configures an Escalator.
type EscalatorOption func(*Escalator)

// WithChainDir persists each captured chain to
// <dir>/fullchain_<host>.pem for out-of-band inspection.
func WithChainDir(dir string) EscalatorOption {
	return func(e *Escalator) {
		e.chainDir = dir
	}
}

// WithHandshakeTimeout bounds each capture handshake. Zero or negative
// durations keep DefaultHandshakeTimeout.
func WithHandshakeTimeout(d time.Duration) EscalatorOption {
	return func(e *Escalator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEscalator creates an Escalator. A nil logger falls back to slog.Default.
func NewEscalator(logger *slog.Logger, opts ...EscalatorOption) *Escalator {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Escalator{
		logger:  logger.With("component", "escalator"),
		timeout: DefaultHandshakeTimeout,
		probes:  make(map[string]*probe),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Escalate opens a raw TLS connection to host:port with verification
// disabled, captures the presented peer chain, and closes the
// connection immediately. The handshake is bounded by the configured
// timeout and runs outside the probe map lock, so a host that hangs
// mid-handshake never delays another host's escalation. The returned
// material backs exactly one retry of the failed request.
func (e *Escalator) Escalate(ctx context.Context, host string, port int) (*TrustMaterial, error) {
	e.mu.Lock()
	p, ok := e.probes[host]
	if !ok {
		p = &probe{}
		e.probes[host] = p
	}
	e.mu.Unlock()

	p.once.Do(func() {
		p.material, p.err = e.capture(ctx, host, port)
	})
	return p.material, p.err
}

func (e *Escalator) capture(ctx context.Context, host string, port int) (*TrustMaterial, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	dialer := &tls.Dialer{
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true, // capture-only handshake, chain is never trusted beyond one retry
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("%w: handshake with %s: %w", ErrEscalation, host, err)
	}
	chain := conn.(*tls.Conn).ConnectionState().PeerCertificates
	conn.Close()

	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: %s presented no certificates", ErrEscalation, host)
	}

	material := &TrustMaterial{Host: host, Chain: chain}

	e.logger.Warn(
		"captured unverified certificate chain for single-retry trust override",
		"host", host,
		"port", port,
		"chain_length", len(chain),
		"subject", chain[0].Subject.String(),
	)

	if e.chainDir != "" {
		if err := e.persist(material); err != nil {
			e.logger.Error("persist certificate chain failed", "host", host, "error", err)
		}
	}

	return material, nil
}

func (e *Escalator) persist(material *TrustMaterial) error {
	if err := os.MkdirAll(e.chainDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(e.chainDir, fmt.Sprintf("fullchain_%s.pem", material.Host))
	return os.WriteFile(path, material.PEM(), 0o644)
}
