package types

import "time"

type Identity struct {
	DevEUI  string
	JoinEUI string
	ReadAt  time.Time
}

type Reading struct {
	Raw     uint16
	Volts   float64
	Celsius float64
	TakenAt time.Time
}

type Uplink struct {
	Sequence uint64
	Reading  Reading
	Message  string
	Response string
	SentAt   time.Time
}
