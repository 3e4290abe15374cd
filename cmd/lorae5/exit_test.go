package main

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/supby/lorae5/internal/radio"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("open serial port")))

	cases := map[radio.Kind]int{
		radio.KindUnexpectedResponse: 2,
		radio.KindMissingCredential:  3,
		radio.KindInvalidCredential:  3,
		radio.KindJoinFailed:         4,
		radio.KindSendFailed:         5,
		radio.KindTimeout:            6,
	}
	for kind, code := range cases {
		err := errors.Wrap(&radio.Error{Stage: radio.StageJoin, Kind: kind}, "provision")
		assert.Equal(t, code, exitCode(err), kind.String())
	}
}
