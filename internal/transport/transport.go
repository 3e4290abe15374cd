package transport

import (
	"bytes"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/modem/trace"
	"go.bug.st/serial.v1"

	"github.com/supby/lorae5/internal/configuration"
	"github.com/supby/lorae5/internal/logger"
)

const DefaultPollDelay = 2 * time.Millisecond

type Options struct {
	PollDelay time.Duration
	// Trace logs every chunk read from and written to the port.
	Trace  bool
	Logger logger.Logger
}

// Transport is a line of text to and from the radio. Bytes are queued by a
// background reader so Receive can tell whether anything is pending, the way
// a UART driver reports bytes available.
type Transport struct {
	port      io.ReadWriteCloser
	rw        io.ReadWriter
	pollDelay time.Duration
	logger    logger.Logger

	mu      sync.Mutex
	pending bytes.Buffer
	readErr error
	closed  bool
}

func Open(cfg configuration.SerialConfiguration, log logger.Logger) (*Transport, error) {
	mode := &serial.Mode{
		BaudRate: int(cfg.BaudRate),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.PortName, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %v", cfg.PortName)
	}

	log.Info("Opened %v at %d baud", cfg.PortName, cfg.BaudRate)

	return New(port, Options{
		PollDelay: cfg.PollDelay,
		Trace:     cfg.Trace,
		Logger:    log,
	}), nil
}

func New(port io.ReadWriteCloser, opts Options) *Transport {
	if opts.PollDelay <= 0 {
		opts.PollDelay = DefaultPollDelay
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger("[serial]", logger.LogLevelError)
	}

	t := &Transport{
		port:      port,
		rw:        port,
		pollDelay: opts.PollDelay,
		logger:    opts.Logger,
	}

	if opts.Trace {
		t.rw = trace.New(port, trace.WithLogger(log.New(opts.Logger.GetWriter(), "[serial] ", log.Ltime|log.Lmicroseconds)))
	}

	go t.readLoop()

	return t
}

func (t *Transport) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := t.rw.Read(buf)
		t.mu.Lock()
		if n > 0 {
			t.pending.Write(buf[:n])
		}
		if err != nil {
			if !t.closed {
				t.readErr = err
			}
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()
	}
}

// WriteLine writes s to the port unchanged; framing is the caller's job.
func (t *Transport) WriteLine(s string) error {
	if _, err := t.rw.Write([]byte(s)); err != nil {
		return errors.Wrap(err, "serial write")
	}

	return nil
}

// Available reports how many received bytes are waiting to be read.
func (t *Transport) Available() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.pending.Len()
}

// Receive drains the queued bytes, pausing PollDelay between polls so a
// response still arriving is picked up, and returns them as text. It returns
// "" straight away when nothing is queued.
func (t *Transport) Receive() (string, error) {
	var data []byte
	for {
		t.mu.Lock()
		n := t.pending.Len()
		if n == 0 {
			err := t.readErr
			t.mu.Unlock()
			if len(data) == 0 && err != nil {
				return "", errors.Wrap(err, "serial read")
			}
			break
		}
		data = append(data, t.pending.Next(n)...)
		t.mu.Unlock()

		time.Sleep(t.pollDelay)
	}

	return strings.ToValidUTF8(string(data), "�"), nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	return t.port.Close()
}
