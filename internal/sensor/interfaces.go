package sensor

import "periph.io/x/conn/v3/analog"

type Sampler interface {
	ReadU16() (uint16, error)
}

// ADCReader is the part of a periph analog pin the sampler needs.
type ADCReader interface {
	Read() (analog.Sample, error)
}
