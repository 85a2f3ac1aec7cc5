package database

import (
	"context"
	"fmt"
	"log"

	"vox-chat/internal/domain"
	"vox-chat/internal/repository"
)

// SeedResult reports what Seed inserted.
type SeedResult struct {
	Roles    int
	Channels int
}

// Seed inserts the default roles and channels into empty tables. Tables
// that already hold rows are left alone.
func Seed(ctx context.Context, gw *repository.SQLGateway) (*SeedResult, error) {
	result := &SeedResult{}

	roles, err := gw.Roles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles: %w", err)
	}
	if len(roles) == 0 {
		defaults := domain.DefaultRoles()
		if err := gw.ReplaceRoles(ctx, defaults); err != nil {
			return nil, fmt.Errorf("failed to seed roles: %w", err)
		}
		result.Roles = len(defaults)
	}

	channels, err := gw.Channels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read channels: %w", err)
	}
	if len(channels) == 0 {
		for _, c := range domain.DefaultChannels() {
			if err := gw.SaveChannel(ctx, c); err != nil {
				return nil, fmt.Errorf("failed to seed channel %s: %w", c.ID, err)
			}
			result.Channels++
		}
	}

	if result.Roles > 0 || result.Channels > 0 {
		log.Printf("Seeded %d roles and %d channels", result.Roles, result.Channels)
	}
	return result, nil
}
