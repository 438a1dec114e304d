package link

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

var (
	ErrAddressRequired     = errors.New("link: address required")
	ErrTLSRequired         = errors.New("link: tls required for mutual auth")
	ErrTLSCAFileRequired   = errors.New("link: tls ca file required")
	ErrTLSCertFileRequired = errors.New("link: tls cert file required")
	ErrTLSKeyFileRequired  = errors.New("link: tls key file required")
)

// TLSConfig wraps the TCP link in TLS when Enabled.
type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

func (c TLSConfig) Validate() error {
	if c.Mutual && !c.Enabled {
		return ErrTLSRequired
	}
	if c.Enabled && strings.TrimSpace(c.CAFile) == "" && !c.InsecureSkipVerify {
		return ErrTLSCAFileRequired
	}
	if c.Mutual {
		if strings.TrimSpace(c.CertFile) == "" {
			return ErrTLSCertFileRequired
		}
		if strings.TrimSpace(c.KeyFile) == "" {
			return ErrTLSKeyFileRequired
		}
	}
	return nil
}

type TCPConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	TLS              TLSConfig
}

func DefaultTCPConfig() TCPConfig {
	return TCPConfig{
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     2 * time.Second,
	}
}

// DialTCP connects to a line peer over TCP (optionally TLS) and returns a
// Stream enforcing budget on every write.
func DialTCP(ctx context.Context, cfg TCPConfig, budget int) (*Stream, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	if err := cfg.TLS.Validate(); err != nil {
		return nil, err
	}
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, err
	}
	var conn net.Conn = rawConn
	if cfg.TLS.Enabled {
		tlsCfg, err := clientTLSConfig(cfg)
		if err != nil {
			_ = rawConn.Close()
			return nil, err
		}
		tconn := tls.Client(rawConn, tlsCfg)
		hctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
		defer cancel()
		if err := tconn.HandshakeContext(hctx); err != nil {
			_ = rawConn.Close()
			return nil, err
		}
		conn = tconn
	}
	return NewStream(conn, budget,
		WithName("tcp:"+cfg.Address),
		WithWriteTimeout(cfg.WriteTimeout),
	), nil
}

func clientTLSConfig(cfg TCPConfig) (*tls.Config, error) {
	out := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
	}
	serverName := strings.TrimSpace(cfg.TLS.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(cfg.Address)
		if err != nil {
			return nil, err
		}
		serverName = host
	}
	out.ServerName = serverName

	if caPath := strings.TrimSpace(cfg.TLS.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("link: parse tls ca bundle: %s", caPath)
		}
		out.RootCAs = pool
	}
	if cfg.TLS.Mutual {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, err
		}
		out.Certificates = []tls.Certificate{cert}
	}
	return out, nil
}
