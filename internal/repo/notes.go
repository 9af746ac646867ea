package repo

import (
	"context"
	"database/sql"
	"time"

	"planline/internal/domain"
)

func (r Repo) InsertNote(ctx context.Context, tx *sql.Tx, n domain.Note) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notes(id,task_id,body,created_at) VALUES (?,?,?,?)`,
		n.ID, n.TaskID, n.Body, n.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (r Repo) ListNotes(ctx context.Context, taskID string) ([]domain.Note, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,body,created_at FROM notes WHERE task_id=? ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var notes []domain.Note
	for rows.Next() {
		var n domain.Note
		var createdAt string
		if err := rows.Scan(&n.ID, &n.TaskID, &n.Body, &createdAt); err != nil {
			return nil, err
		}
		n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
