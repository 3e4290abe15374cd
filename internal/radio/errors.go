package radio

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindUnexpectedResponse Kind = iota + 1
	KindMissingCredential
	KindInvalidCredential
	KindJoinFailed
	KindSendFailed
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindUnexpectedResponse:
		return "unexpected response"
	case KindMissingCredential:
		return "missing credential"
	case KindInvalidCredential:
		return "invalid credential"
	case KindJoinFailed:
		return "join failed"
	case KindSendFailed:
		return "send failed"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Stage string

const (
	StageCheckConnection Stage = "check connection"
	StageReadIdentifiers Stage = "read identifiers"
	StageSetCredential   Stage = "set credential"
	StageJoin            Stage = "join"
	StageSend            Stage = "send"
)

// Error is a stage outcome the device (or its silence) is responsible for.
// Transport failures are returned as plain wrapped errors instead.
type Error struct {
	Stage    Stage
	Kind     Kind
	Response string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%v: %v", e.Stage, e.Kind)
	if e.Response != "" {
		msg = fmt.Sprintf("%v (response %q)", msg, e.Response)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%v: %v", msg, e.Err)
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}

	return 0, false
}

func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
