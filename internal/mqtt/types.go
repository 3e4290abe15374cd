package mqtt

import "time"

type UplinkMessage struct {
	DevEUI   string    `json:"devEui"`
	Sequence uint64    `json:"sequence"`
	Raw      uint16    `json:"raw"`
	Volts    float64   `json:"volts"`
	Celsius  float64   `json:"celsius"`
	Message  string    `json:"message"`
	Response string    `json:"response"`
	SentAt   time.Time `json:"sentAt"`
}

type StatusMessage struct {
	DevEUI  string    `json:"devEui"`
	JoinEUI string    `json:"joinEui"`
	Status  string    `json:"status"`
	Time    time.Time `json:"time"`
}
