package repos

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type SessionRepo struct {
	db     *sqlx.DB
	sealer *Sealer
}

func NewSessionRepo(db *sqlx.DB, sealer *Sealer) *SessionRepo {
	return &SessionRepo{db: db, sealer: sealer}
}

type sessionRow struct {
	ID     string `db:"id"`
	Sealed []byte `db:"token_sealed"`
}

// SaveToken stores token for sid, creating the session row if needed.
func (r *SessionRepo) SaveToken(sid, token string) error {
	sealed, err := r.sealer.Seal(token)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`INSERT INTO sessions(id,token_sealed,updated_at)
                        VALUES(?,?,CURRENT_TIMESTAMP)
                        ON CONFLICT(id) DO UPDATE SET token_sealed=excluded.token_sealed,updated_at=CURRENT_TIMESTAMP`, sid, sealed)
	return err
}

func (r *SessionRepo) ClearToken(sid string) error {
	_, err := r.db.Exec(`UPDATE sessions SET token_sealed=NULL,updated_at=CURRENT_TIMESTAMP WHERE id=?`, sid)
	return err
}

// Token returns the persisted token for sid, or "" when there is none.
// A token that no longer unseals (rotated secret) reads as absent.
func (r *SessionRepo) Token(sid string) (string, error) {
	var sealed []byte
	err := r.db.Get(&sealed, `SELECT token_sealed FROM sessions WHERE id=? AND token_sealed IS NOT NULL`, sid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	tok, err := r.sealer.Open(sealed)
	if errors.Is(err, ErrUnseal) {
		return "", nil
	}
	return tok, err
}

// Authenticated lists every sid that currently holds a token.
func (r *SessionRepo) Authenticated() ([]string, error) {
	var rows []sessionRow
	if err := r.db.Select(&rows, `SELECT id,token_sealed FROM sessions WHERE token_sealed IS NOT NULL`); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if _, err := r.sealer.Open(row.Sealed); err == nil {
			out = append(out, row.ID)
		}
	}
	return out, nil
}

// Purge removes signed-out rows untouched for longer than the given SQLite modifier (e.g. "-30 days").
func (r *SessionRepo) Purge(age string) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM sessions WHERE token_sealed IS NULL AND updated_at < datetime('now', ?)`, age)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
