package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	ResolveKit(ctx context.Context, ref MembershipRef) (Resolution, error)
	KitLines(ctx context.Context, kitID snowflake.ID) ([]KitLineView, error)
	BackfillMissingKits(ctx context.Context, cycleID snowflake.ID, actor string) (int64, error)

	// LoadIndex snapshots every kit inside tx.
	LoadIndex(ctx context.Context, tx *gorm.DB) (*Index, error)
	// LinesForKits loads lines of the given kits inside tx, keyed by kit id.
	LinesForKits(ctx context.Context, tx *gorm.DB, kitIDs []snowflake.ID) (map[snowflake.ID][]KitLineView, error)
}

var (
	ErrInvalidCycle = errors.New("invalid_cycle")
	ErrInvalidKit   = errors.New("invalid_kit")
	ErrKitNotFound  = errors.New("kit_not_found")
)
