package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_weekly_exams.sql
var createWeeklyExamsSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createWeeklyExamsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`
				DROP TABLE IF EXISTS exam_badges;
				DROP TABLE IF EXISTS exam_submissions;
				DROP TABLE IF EXISTS exam_progress;
				DROP TABLE IF EXISTS weekly_exam_questions;
				DROP TABLE IF EXISTS weekly_exams;
				DROP TABLE IF EXISTS choices;
				DROP TABLE IF EXISTS questions;
				DROP TABLE IF EXISTS users;
			`)
			return err
		},
	)
}
