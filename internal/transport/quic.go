package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/1ureka/framewire/internal/util"
)

// ALPN protocol id negotiated on QUIC connections.
const quicALPN = "framewire"

var quicConfig = &quic.Config{
	MaxIdleTimeout:  30 * time.Second,
	KeepAlivePeriod: 10 * time.Second,
}

// streamConn wraps the single bidirectional QUIC stream of a connection.
type streamConn struct {
	*quic.Stream
	conn *quic.Conn
}

func (c *streamConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *streamConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close tears down the whole QUIC connection, not just the send side.
func (c *streamConn) Close() error {
	c.Stream.CancelRead(0)
	return errors.Join(c.Stream.Close(), c.conn.CloseWithError(0, "closed"))
}

// clientTLS skips verification; the server certificate is self-signed.
func clientTLS() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS13,
		NextProtos:         []string{quicALPN},
	}
}

// DialQUIC connects to addr and opens one bidirectional stream.
func DialQUIC(ctx context.Context, addr string) (Conn, error) {
	conn, err := quic.DialAddr(ctx, addr, clientTLS(), quicConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to dial quic %s: %w", addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "")
		return nil, fmt.Errorf("failed to open quic stream: %w", err)
	}
	return &streamConn{Stream: stream, conn: conn}, nil
}

// ListenQUIC listens on addr with a freshly generated self-signed
// certificate. Each accepted connection yields a Conn once the peer opens
// its stream.
func ListenQUIC(addr string) (Listener, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, err
	}
	ln, err := quic.ListenAddr(addr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		NextProtos:   []string{quicALPN},
	}, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on quic %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := newChanListener(ln.Addr(), func() error {
		cancel()
		return ln.Close()
	})

	go func() {
		for {
			conn, err := ln.Accept(ctx)
			if err != nil {
				if !l.closed() {
					util.LogError("quic accept: %v", err)
				}
				l.Close()
				return
			}
			go func() {
				sctx, scancel := context.WithTimeout(ctx, 10*time.Second)
				defer scancel()
				stream, err := conn.AcceptStream(sctx)
				if err != nil {
					util.LogDebug("quic %s: no stream: %v", conn.RemoteAddr(), err)
					conn.CloseWithError(0, "no stream")
					return
				}
				l.push(&streamConn{Stream: stream, conn: conn})
			}()
		}
	}()
	return l, nil
}

func selfSignedCert() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate serial: %w", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "framewire"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create certificate: %w", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
