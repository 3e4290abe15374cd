package telemetry

import (
	"context"

	"github.com/supby/lorae5/internal/atcmd"
	"github.com/supby/lorae5/internal/types"
)

type Sender interface {
	SendMessage(ctx context.Context, msg string, opts atcmd.PollOptions) (string, error)
	SendHex(ctx context.Context, payload string, opts atcmd.PollOptions) (string, error)
}

type Recorder interface {
	AppendUplink(ctx context.Context, uplink types.Uplink) (types.Uplink, error)
}

type Publisher interface {
	PublishUplink(identity types.Identity, uplink types.Uplink) error
}
