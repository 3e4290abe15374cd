package payload

import (
	"encoding/hex"
	"math"
	"strconv"
	"strings"

	cayennelpp "github.com/TheThingsNetwork/go-cayenne-lib"
	"github.com/pkg/errors"

	"github.com/supby/lorae5/internal/types"
)

const (
	FormatText    = "text"
	FormatFixed2  = "fixed2"
	FormatCayenne = "cayenne"

	// CayenneChannel is the LPP data channel the temperature is reported on.
	CayenneChannel = 1
)

// Message is an uplink body. Hex messages go out with AT+MSGHEX.
type Message struct {
	Body string
	Hex  bool
}

func Encode(format string, r types.Reading) (Message, error) {
	switch format {
	case FormatText:
		return Message{Body: FormatCelsius(r.Celsius)}, nil
	case FormatFixed2:
		return Message{Body: strconv.FormatFloat(r.Celsius, 'f', 2, 64)}, nil
	case FormatCayenne:
		enc := cayennelpp.NewEncoder()
		enc.AddTemperature(CayenneChannel, r.Celsius)
		return Message{Body: strings.ToUpper(hex.EncodeToString(enc.Bytes())), Hex: true}, nil
	}

	return Message{}, errors.Errorf("unknown payload format %q", format)
}

// FormatCelsius renders v in its shortest round-trip decimal form, keeping a
// fractional part on whole numbers ("0.0", "21.5", "1e-05").
func FormatCelsius(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}

	return s
}
