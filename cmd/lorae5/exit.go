package main

import (
	"github.com/supby/lorae5/internal/radio"
)

const (
	exitOK = iota
	exitFailure
	exitUnexpectedResponse
	exitCredential
	exitJoinFailed
	exitSendFailed
	exitTimeout
)

// exitCode maps a failed run to the process exit status, one per device
// error kind.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	kind, ok := radio.KindOf(err)
	if !ok {
		return exitFailure
	}

	switch kind {
	case radio.KindUnexpectedResponse:
		return exitUnexpectedResponse
	case radio.KindMissingCredential, radio.KindInvalidCredential:
		return exitCredential
	case radio.KindJoinFailed:
		return exitJoinFailed
	case radio.KindSendFailed:
		return exitSendFailed
	case radio.KindTimeout:
		return exitTimeout
	}

	return exitFailure
}
