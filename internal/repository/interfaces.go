package repository

import (
	"context"
	"time"

	"vox-chat/internal/domain"
)

// StateReader loads the durable entities the session store starts from.
type StateReader interface {
	Channels(ctx context.Context) ([]domain.Channel, error)
	Messages(ctx context.Context) ([]*domain.Message, error)
	Roles(ctx context.Context) ([]domain.Role, error)
	Assignments(ctx context.Context) (map[string][]string, error)
}

// StateWriter persists deltas produced by the realtime router.
type StateWriter interface {
	SaveChannel(ctx context.Context, c domain.Channel) error
	DeleteChannel(ctx context.Context, id string) error
	SaveMessage(ctx context.Context, m *domain.Message) error
	DeleteMessage(ctx context.Context, id string) error
	ReplaceRoles(ctx context.Context, roles []domain.Role) error
	SetUserRoles(ctx context.Context, username string, roleIDs []string) error
	TouchUser(ctx context.Context, username string, at time.Time) error
	RecordLogin(ctx context.Context, l domain.LoginLog) error
}

// Gateway is the persistence boundary of the server.
type Gateway interface {
	StateReader
	StateWriter
	Ping(ctx context.Context) error
}
