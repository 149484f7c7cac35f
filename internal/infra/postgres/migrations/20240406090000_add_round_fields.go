package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0002_add_round_fields.sql
var addRoundFieldsSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(addRoundFieldsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`ALTER TABLE user_stats DROP COLUMN IF EXISTS current_round`)
			if err != nil {
				return err
			}
			_, err = db.Exec(`ALTER TABLE user_stats DROP COLUMN IF EXISTS rounds_won`)
			return err
		},
	)
}
