package link

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		BaudRate:    115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// OpenSerial opens a UART-style link (8N1). Reads return empty chunks on
// ReadTimeout so the pump can observe cancellation.
func OpenSerial(cfg SerialConfig, budget int) (*Stream, error) {
	name := strings.TrimSpace(cfg.Port)
	if name == "" {
		return nil, ErrAddressRequired
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultSerialConfig().BaudRate
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("link: open serial %s: %w", name, err)
	}
	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("link: serial read timeout: %w", err)
		}
	}
	return NewStream(port, budget, WithName("serial:"+name)), nil
}

// SerialPorts lists serial devices visible to the host.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
