package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrUnknownKind = errors.New("config: unknown config kind")

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "host":
		return hostTemplate, nil
	case "peer":
		return peerTemplate, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const hostTemplate = `name = "linkctl"
# tcp | serial | loopback
link = "tcp"
addr = "127.0.0.1:7070"
connect_timeout = "5s"
write_timeout = "2s"

serial_port = "/dev/ttyUSB0"
serial_baud = 115200

frame_budget = 20
terminator_bytes = 1
max_seq = 1000
ack_prefix = "Echo:"
ack_timeout = "2s"
max_dial_attempts = 0

http_addr = ":9080"
# bearer token for POST /send and /probe; empty leaves them open
http_token = ""
cors_origins = ["http://localhost:3000"]
probe_db = "data/probe.db"

tls_enabled = false
tls_mutual = false
tls_ca_file = ""
tls_cert_file = ""
tls_key_file = ""
`

const peerTemplate = `addr = ":7070"
prefix = "Echo:"
nospace = false
`
