package db

import (
	"context"

	"github.com/supby/lorae5/internal/types"
)

type TelemetryDB interface {
	SaveIdentity(ctx context.Context, identity types.Identity) error
	GetIdentity(ctx context.Context) (types.Identity, error)
	AppendUplink(ctx context.Context, uplink types.Uplink) (types.Uplink, error)
	GetUplinks(ctx context.Context, limit int) ([]types.Uplink, error)
	Close(ctx context.Context) error
}
