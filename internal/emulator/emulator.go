// Package emulator answers LoRa-E5 AT commands the way the module does, so
// the provisioning sequence can run without hardware.
package emulator

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	DefaultDevEUI  = "2C:F7:F1:20:32:30:A5:70"
	DefaultJoinEUI = "80:00:00:00:00:00:00:06"
)

// Reply is one chunk of output, queued Delay after the command is written.
type Reply struct {
	Data  string
	Delay time.Duration
}

type Options struct {
	DevEUI  string
	JoinEUI string
	// JoinDelay is how long the network takes to accept the join.
	JoinDelay time.Duration
	// AirTime is how long an uplink takes before the module reports Done.
	AirTime time.Duration
}

type Device struct {
	opts   Options
	rx     chan []byte
	closed chan struct{}

	mu        sync.Mutex
	leftover  []byte
	commands  []string
	overrides map[string][][]Reply
	band      string
	dataRate  string
	isClosed  bool
}

func New(opts Options) *Device {
	if opts.DevEUI == "" {
		opts.DevEUI = DefaultDevEUI
	}
	if opts.JoinEUI == "" {
		opts.JoinEUI = DefaultJoinEUI
	}

	return &Device{
		opts:      opts,
		rx:        make(chan []byte, 64),
		closed:    make(chan struct{}),
		overrides: make(map[string][][]Reply),
		band:      "EU868",
		dataRate:  "DR0",
	}
}

// On makes the next write of cmd (exact, without "\r\n") answer with replies
// instead of the built-in behaviour. Calls queue up; each is used once.
func (d *Device) On(cmd string, replies ...Reply) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.overrides[cmd] = append(d.overrides[cmd], replies)
}

// Commands returns every command written so far, without line terminators.
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.commands...)
}

func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	if d.isClosed {
		d.mu.Unlock()
		return 0, io.ErrClosedPipe
	}

	var replies []Reply
	for _, line := range strings.SplitAfter(string(p), "\r\n") {
		cmd := strings.TrimSuffix(line, "\r\n")
		if cmd == line {
			// no terminator: the module waits for the rest of the line
			continue
		}
		d.commands = append(d.commands, cmd)
		replies = append(replies, d.answer(cmd)...)
	}
	d.mu.Unlock()

	for _, r := range replies {
		d.queue(r)
	}

	return len(p), nil
}

func (d *Device) queue(r Reply) {
	push := func() {
		select {
		case d.rx <- []byte(r.Data):
		case <-d.closed:
		}
	}

	if r.Delay <= 0 {
		push()
		return
	}
	time.AfterFunc(r.Delay, push)
}

func (d *Device) Read(p []byte) (int, error) {
	if len(d.leftover) > 0 {
		n := copy(p, d.leftover)
		d.leftover = d.leftover[n:]
		return n, nil
	}

	select {
	case b := <-d.rx:
		n := copy(p, b)
		d.leftover = b[n:]
		return n, nil
	case <-d.closed:
		return 0, io.EOF
	}
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isClosed {
		d.isClosed = true
		close(d.closed)
	}

	return nil
}

// answer must be called with d.mu held.
func (d *Device) answer(cmd string) []Reply {
	if queued := d.overrides[cmd]; len(queued) > 0 {
		d.overrides[cmd] = queued[1:]
		return queued[0]
	}

	head, arg, hasArg := strings.Cut(cmd, "=")
	switch head {
	case "AT":
		return now("+AT: OK\r\n")
	case "AT+ID":
		switch arg {
		case "DevEui":
			return now(fmt.Sprintf("+ID: DevEui, %v\r\n", d.opts.DevEUI))
		case "AppEui":
			return now(fmt.Sprintf("+ID: AppEui, %v\r\n", d.opts.JoinEUI))
		}
	case "AT+KEY":
		key := strings.Trim(strings.TrimPrefix(arg, "APPKEY,"), `"`)
		return now(fmt.Sprintf("+KEY: APPKEY %v\r\n", key))
	case "AT+DR":
		if !hasArg {
			return now(fmt.Sprintf("+DR: %v %v\r\n", d.band, d.dataRate))
		}
		if _, err := fmt.Sscanf(arg, "%d", new(int)); err == nil {
			d.dataRate = "DR" + arg
			return now(fmt.Sprintf("+DR: %v\r\n", d.dataRate))
		}
		d.band = strings.ToUpper(arg)
		return now(fmt.Sprintf("+DR: %v\r\n", d.band))
	case "AT+CH":
		return now(fmt.Sprintf("+CH: %v\r\n", strings.Replace(arg, ",", ", ", 1)))
	case "AT+MODE":
		return now(fmt.Sprintf("+MODE: %v\r\n", arg))
	case "AT+ADR":
		return now(fmt.Sprintf("+ADR: %v\r\n", arg))
	case "AT+JOIN":
		return []Reply{
			{Data: "+JOIN: Start\r\n+JOIN: NORMAL\r\n"},
			{Data: "+JOIN: Network joined\r\n+JOIN: NetID 000013 DevAddr 26:0B:5F:1A\r\n+JOIN: Done\r\n", Delay: d.opts.JoinDelay},
		}
	case "AT+MSG", "AT+MSGHEX":
		prefix := strings.TrimPrefix(head, "AT")
		return []Reply{
			{Data: prefix + ": Start\r\n"},
			{Data: prefix + ": Done\r\n", Delay: d.opts.AirTime},
		}
	}

	return now(fmt.Sprintf("%v: ERROR(-1)\r\n", strings.TrimPrefix(head, "AT")))
}

func now(data string) []Reply {
	return []Reply{{Data: data}}
}
