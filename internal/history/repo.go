package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/questline/internal/apperr"
)

// Record is one stored export.
type Record struct {
	ID          string     `json:"id"`
	QuestlineID string     `json:"questlineId"`
	QuestCount  int        `json:"questCount"`
	AssetCount  int        `json:"assetCount"`
	Checksum    string     `json:"checksum"`
	Object      string     `json:"object"`
	Size        int64      `json:"size"`
	CreatedAt   time.Time  `json:"createdAt"`
	Quests      []QuestRow `json:"quests,omitempty"`
}

// QuestRow is the placement of one quest in an export.
type QuestRow struct {
	QuestKey string  `json:"questKey"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	W        float64 `json:"w"`
	H        float64 `json:"h"`
	Rotation float64 `json:"rotation"`
}

// QuestUse is one export a quest key appeared in.
type QuestUse struct {
	ExportID    string    `json:"exportId"`
	QuestlineID string    `json:"questlineId"`
	CreatedAt   time.Time `json:"createdAt"`
}

const defaultLimit = 50

// Insert stores r and its quest rows within a transaction.
func (db *DB) Insert(r Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO exports (id, questline_id, quest_count, asset_count, checksum, object, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.QuestlineID, r.QuestCount, r.AssetCount, r.Checksum, r.Object, r.Size, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("history: insert export: %w", err)
	}

	if len(r.Quests) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO export_quests (export_id, position, quest_key, x, y, w, h, rotation)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("history: prepare quest insert: %w", err)
		}
		defer stmt.Close()
		for i, q := range r.Quests {
			if _, err := stmt.Exec(r.ID, i, q.QuestKey, q.X, q.Y, q.W, q.H, q.Rotation); err != nil {
				return fmt.Errorf("history: insert quest: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Get returns an export with its quest rows.
func (db *DB) Get(id string) (*Record, error) {
	var r Record
	err := db.conn.QueryRow(`
		SELECT id, questline_id, quest_count, asset_count, checksum, object, size, created_at
		FROM exports WHERE id = ?
	`, id).Scan(&r.ID, &r.QuestlineID, &r.QuestCount, &r.AssetCount, &r.Checksum, &r.Object, &r.Size, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history: export %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("history: get export: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT quest_key, x, y, w, h, rotation
		FROM export_quests WHERE export_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("history: get quests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var q QuestRow
		if err := rows.Scan(&q.QuestKey, &q.X, &q.Y, &q.W, &q.H, &q.Rotation); err != nil {
			return nil, err
		}
		r.Quests = append(r.Quests, q)
	}
	return &r, rows.Err()
}

// List returns exports newest first with the total count. An empty
// questlineID lists every questline. A zero limit uses the default page
// size; a negative limit returns everything after offset.
func (db *DB) List(questlineID string, limit, offset int) ([]Record, int, error) {
	switch {
	case limit == 0:
		limit = defaultLimit
	case limit < 0:
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	var args []any
	if questlineID != "" {
		where = "WHERE questline_id = ?"
		args = append(args, questlineID)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM exports `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("history: count: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT id, questline_id, quest_count, asset_count, checksum, object, size, created_at
		FROM exports `+where+`
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.QuestlineID, &r.QuestCount, &r.AssetCount, &r.Checksum, &r.Object, &r.Size, &r.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// Delete removes an export and its quest rows.
func (db *DB) Delete(id string) error {
	res, err := db.conn.Exec(`DELETE FROM exports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("history: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("history: export %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// Objects maps every stored object name to its export id.
func (db *DB) Objects() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT object, id FROM exports`)
	if err != nil {
		return nil, fmt.Errorf("history: objects: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var obj, id string
		if err := rows.Scan(&obj, &id); err != nil {
			return nil, err
		}
		out[obj] = id
	}
	return out, rows.Err()
}

// QuestHistory returns the exports that contained questKey, newest first.
func (db *DB) QuestHistory(questKey string, limit int) ([]QuestUse, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := db.conn.Query(`
		SELECT e.id, e.questline_id, e.created_at
		FROM export_quests q JOIN exports e ON e.id = q.export_id
		WHERE q.quest_key = ?
		ORDER BY e.created_at DESC
		LIMIT ?
	`, questKey, limit)
	if err != nil {
		return nil, fmt.Errorf("history: quest history: %w", err)
	}
	defer rows.Close()

	out := []QuestUse{}
	for rows.Next() {
		var u QuestUse
		if err := rows.Scan(&u.ExportID, &u.QuestlineID, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
