// Package config loads TOML configuration for linkctl and echopeer. Keys
// present in the file override the package defaults; absent keys keep them.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/edgelink/internal/link"
	"github.com/danmuck/edgelink/internal/protocol/frame"
	"github.com/danmuck/edgelink/internal/protocol/session"
)

var (
	ErrUnknownLink     = errors.New("config: unknown link kind")
	ErrSerialPort      = errors.New("config: serial port required for serial link")
	ErrTCPAddr         = errors.New("config: addr required for tcp link")
	ErrFrameBudget     = errors.New("config: frame_budget too small")
	ErrAckPrefix       = errors.New("config: ack_prefix required")
	ErrInvalidDuration = errors.New("config: invalid duration")
)

type LinkKind string

const (
	LinkTCP      LinkKind = "tcp"
	LinkSerial   LinkKind = "serial"
	LinkLoopback LinkKind = "loopback"
)

func ParseLinkKind(raw string) (LinkKind, error) {
	switch kind := LinkKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case LinkTCP, LinkSerial, LinkLoopback:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLink, raw)
	}
}

// HostConfig is the runtime configuration of linkctl.
type HostConfig struct {
	Name            string
	Link            LinkKind
	TCP             link.TCPConfig
	Serial          link.SerialConfig
	Session         session.Config
	Backoff         link.Backoff
	MaxDialAttempts int
	HTTPAddr        string
	HTTPToken       string
	CorsOrigins     []string
	ProbeDB         string
}

func DefaultHostConfig() HostConfig {
	tcp := link.DefaultTCPConfig()
	tcp.Address = "127.0.0.1:7070"
	return HostConfig{
		Name:     "linkctl",
		Link:     LinkTCP,
		TCP:      tcp,
		Serial:   link.DefaultSerialConfig(),
		Session:  session.DefaultConfig(),
		Backoff:  link.DefaultBackoff(),
		HTTPAddr: ":9080",
		ProbeDB:  "data/probe.db",
	}
}

// PeerConfig is the runtime configuration of echopeer.
type PeerConfig struct {
	Addr    string
	Prefix  string
	NoSpace bool
}

func DefaultPeerConfig() PeerConfig {
	return PeerConfig{
		Addr:   ":7070",
		Prefix: frame.DefaultAckPrefix,
	}
}

// hostFile is the linkctl config.toml key mapping.
type hostFile struct {
	Name            string   `toml:"name"`
	Link            string   `toml:"link"`
	Addr            string   `toml:"addr"`
	ConnectTimeout  string   `toml:"connect_timeout"`
	WriteTimeout    string   `toml:"write_timeout"`
	SerialPort      string   `toml:"serial_port"`
	SerialBaud      int      `toml:"serial_baud"`
	FrameBudget     int      `toml:"frame_budget"`
	TerminatorBytes int      `toml:"terminator_bytes"`
	MaxSeq          int      `toml:"max_seq"`
	AckPrefix       string   `toml:"ack_prefix"`
	AckTimeout      string   `toml:"ack_timeout"`
	AckTimeoutMS    int      `toml:"ack_timeout_ms"`
	MaxLineBytes    int      `toml:"max_line_bytes"`
	MaxDialAttempts int      `toml:"max_dial_attempts"`
	HTTPAddr        string   `toml:"http_addr"`
	HTTPToken       string   `toml:"http_token"`
	CorsOrigins     []string `toml:"cors_origins"`
	ProbeDB         string   `toml:"probe_db"`
	TLSEnabled      bool     `toml:"tls_enabled"`
	TLSMutual       bool     `toml:"tls_mutual"`
	TLSCAFile       string   `toml:"tls_ca_file"`
	TLSCertFile     string   `toml:"tls_cert_file"`
	TLSKeyFile      string   `toml:"tls_key_file"`
	TLSServerName   string   `toml:"tls_server_name"`
}

type peerFile struct {
	Addr    string `toml:"addr"`
	Prefix  string `toml:"prefix"`
	NoSpace bool   `toml:"nospace"`
}

func LoadHostConfig(path string) (HostConfig, error) {
	cfg := DefaultHostConfig()

	var raw hostFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return HostConfig{}, fmt.Errorf("load host config (%s): %w", path, err)
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("link") {
		kind, err := ParseLinkKind(raw.Link)
		if err != nil {
			return HostConfig{}, err
		}
		cfg.Link = kind
	}
	if meta.IsDefined("addr") {
		cfg.TCP.Address = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("connect_timeout") {
		if cfg.TCP.ConnectTimeout, err = parseDuration("connect_timeout", raw.ConnectTimeout); err != nil {
			return HostConfig{}, err
		}
	}
	if meta.IsDefined("write_timeout") {
		if cfg.TCP.WriteTimeout, err = parseDuration("write_timeout", raw.WriteTimeout); err != nil {
			return HostConfig{}, err
		}
	}
	if meta.IsDefined("serial_port") {
		cfg.Serial.Port = strings.TrimSpace(raw.SerialPort)
	}
	if meta.IsDefined("serial_baud") {
		cfg.Serial.BaudRate = raw.SerialBaud
	}
	if meta.IsDefined("frame_budget") {
		cfg.Session.Limits.FrameBudget = raw.FrameBudget
	}
	if meta.IsDefined("terminator_bytes") {
		cfg.Session.Limits.TerminatorBytes = raw.TerminatorBytes
	}
	if meta.IsDefined("max_seq") {
		cfg.Session.Limits.MaxSeq = raw.MaxSeq
	}
	if meta.IsDefined("ack_prefix") {
		cfg.Session.Limits.AckPrefix = strings.TrimSpace(raw.AckPrefix)
	}
	if meta.IsDefined("ack_timeout_ms") {
		cfg.Session.AckTimeout = time.Duration(raw.AckTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("ack_timeout") {
		if cfg.Session.AckTimeout, err = parseDuration("ack_timeout", raw.AckTimeout); err != nil {
			return HostConfig{}, err
		}
	}
	if meta.IsDefined("max_line_bytes") {
		cfg.Session.MaxLineBytes = raw.MaxLineBytes
	}
	if meta.IsDefined("max_dial_attempts") {
		cfg.MaxDialAttempts = raw.MaxDialAttempts
	}
	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("http_token") {
		cfg.HTTPToken = strings.TrimSpace(raw.HTTPToken)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("probe_db") {
		cfg.ProbeDB = strings.TrimSpace(raw.ProbeDB)
	}
	if meta.IsDefined("tls_enabled") {
		cfg.TCP.TLS.Enabled = raw.TLSEnabled
	}
	if meta.IsDefined("tls_mutual") {
		cfg.TCP.TLS.Mutual = raw.TLSMutual
	}
	if meta.IsDefined("tls_ca_file") {
		cfg.TCP.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.TCP.TLS.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		cfg.TCP.TLS.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if meta.IsDefined("tls_server_name") {
		cfg.TCP.TLS.ServerName = strings.TrimSpace(raw.TLSServerName)
	}

	if err := ValidateHostConfig(cfg); err != nil {
		return HostConfig{}, err
	}
	cfg.Session = cfg.Session.WithDefaults()
	return cfg, nil
}

func LoadPeerConfig(path string) (PeerConfig, error) {
	cfg := DefaultPeerConfig()

	var raw peerFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return PeerConfig{}, fmt.Errorf("load peer config (%s): %w", path, err)
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("prefix") {
		cfg.Prefix = strings.TrimSpace(raw.Prefix)
	}
	if meta.IsDefined("nospace") {
		cfg.NoSpace = raw.NoSpace
	}
	if err := ValidatePeerConfig(cfg); err != nil {
		return PeerConfig{}, err
	}
	return cfg, nil
}

func ValidateHostConfig(cfg HostConfig) error {
	switch cfg.Link {
	case LinkTCP:
		if strings.TrimSpace(cfg.TCP.Address) == "" {
			return ErrTCPAddr
		}
		if err := cfg.TCP.TLS.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	case LinkSerial:
		if strings.TrimSpace(cfg.Serial.Port) == "" {
			return ErrSerialPort
		}
	case LinkLoopback:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLink, cfg.Link)
	}

	// A frame must fit at least "<seq>|x" plus the terminator at the
	// widest sequence number.
	limits := cfg.Session.Limits.WithDefaults()
	minBudget := limits.TerminatorBytes + frame.Digits(limits.MaxSeq) + 2
	if limits.FrameBudget < minBudget {
		return fmt.Errorf("%w: %d < %d", ErrFrameBudget, limits.FrameBudget, minBudget)
	}
	return nil
}

func ValidatePeerConfig(cfg PeerConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return ErrTCPAddr
	}
	if strings.TrimSpace(cfg.Prefix) == "" {
		return ErrAckPrefix
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidDuration, key, raw)
	}
	return d, nil
}
