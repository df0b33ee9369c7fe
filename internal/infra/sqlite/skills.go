package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/skillforge-network/skillforge/internal/domain"
)

// ─── Skill Catalog Operations ───────────────────────────────────────────────
// The DB satisfies domain.SkillCatalog: the exchange service only needs
// OffersSkill and SkillName.

// CreateSkill inserts a catalog entry (idempotent on name).
func (db *DB) CreateSkill(ctx context.Context, name, category string) (int64, error) {
	res, err := db.db.ExecContext(ctx, `
		INSERT INTO skills (name, category) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET category = excluded.category
	`, name, category)
	if err != nil {
		return 0, fmt.Errorf("insert skill: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		return id, nil
	}
	var id int64
	err = db.db.QueryRowContext(ctx, `SELECT id FROM skills WHERE name = ?`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup skill: %w", err)
	}
	return id, nil
}

// SetUserSkill records that a user offers (or merely wants) a skill.
func (db *DB) SetUserSkill(ctx context.Context, userID, skillID int64, proficiency int, offering bool) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO user_skills (user_id, skill_id, proficiency, offering)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, skill_id) DO UPDATE SET
			proficiency = excluded.proficiency,
			offering    = excluded.offering
	`, userID, skillID, proficiency, boolToInt(offering))
	if err != nil {
		return fmt.Errorf("set user skill: %w", err)
	}
	return nil
}

// OffersSkill reports whether the user has an offering record for the skill.
func (db *DB) OffersSkill(ctx context.Context, userID, skillID int64) (bool, error) {
	var count int
	err := db.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_skills
		WHERE user_id = ? AND skill_id = ? AND offering = 1
	`, userID, skillID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check offering: %w", err)
	}
	return count > 0, nil
}

// SkillName resolves a skill id to its display name.
func (db *DB) SkillName(ctx context.Context, skillID int64) (string, error) {
	var name string
	err := db.db.QueryRowContext(ctx, `SELECT name FROM skills WHERE id = ?`, skillID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", domain.ErrSkillNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get skill: %w", err)
	}
	return name, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
