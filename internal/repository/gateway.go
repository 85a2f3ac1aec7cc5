package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"vox-chat/internal/domain"
	"vox-chat/internal/session"
	voxerrors "vox-chat/pkg/errors"
)

// timeLayout is used for every timestamp column so both dialects store the
// same text.
const timeLayout = time.RFC3339Nano

// SQLGateway implements Gateway over database/sql. It works against sqlite
// and postgres; only placeholder syntax differs.
type SQLGateway struct {
	db      DBTX
	dialect Dialect
}

func NewSQLGateway(db DBTX, dialect Dialect) *SQLGateway {
	return &SQLGateway{db: db, dialect: dialect}
}

func (g *SQLGateway) q(query string) string {
	return rebind(g.dialect, query)
}

func (g *SQLGateway) Ping(ctx context.Context) error {
	var one int
	return g.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// LoadState reads everything the session store needs at startup.
func LoadState(ctx context.Context, r StateReader) (session.LoadedState, error) {
	var (
		st  session.LoadedState
		err error
	)
	if st.Channels, err = r.Channels(ctx); err != nil {
		return st, fmt.Errorf("load channels: %w", err)
	}
	if st.Messages, err = r.Messages(ctx); err != nil {
		return st, fmt.Errorf("load messages: %w", err)
	}
	if st.Roles, err = r.Roles(ctx); err != nil {
		return st, fmt.Errorf("load roles: %w", err)
	}
	if st.Assignments, err = r.Assignments(ctx); err != nil {
		return st, fmt.Errorf("load role assignments: %w", err)
	}
	return st, nil
}

func (g *SQLGateway) Channels(ctx context.Context) ([]domain.Channel, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT id, name, type FROM channels ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Channel
	for rows.Next() {
		var c domain.Channel
		if err := rows.Scan(&c.ID, &c.Name, &c.Type); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (g *SQLGateway) SaveChannel(ctx context.Context, c domain.Channel) error {
	_, err := g.db.ExecContext(ctx, g.q(`
        INSERT INTO channels (id, name, type, created_at)
        VALUES (?,?,?,?)
        ON CONFLICT (id) DO UPDATE SET name = excluded.name, type = excluded.type
    `), c.ID, c.Name, string(c.Type), time.Now().UTC().Format(timeLayout))
	return err
}

// DeleteChannel removes the channel and its messages in one transaction.
func (g *SQLGateway) DeleteChannel(ctx context.Context, id string) error {
	return WithTx(ctx, g.db, func(tx DBTX) error {
		if _, err := tx.ExecContext(ctx, g.q(`DELETE FROM messages WHERE channel_id = ?`), id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, g.q(`DELETE FROM channels WHERE id = ?`), id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return voxerrors.ErrNotFound
		}
		return nil
	})
}

func (g *SQLGateway) Messages(ctx context.Context) ([]*domain.Message, error) {
	rows, err := g.db.QueryContext(ctx, `
        SELECT id, channel_id, user_id, username, text, gif_url, timestamp, reactions, file, link_preview, edited
        FROM messages
        ORDER BY timestamp, id
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMessage(rows *sql.Rows) (*domain.Message, error) {
	var (
		m                              domain.Message
		userID, gifURL, text           sql.NullString
		ts                             string
		reactions, file, preview, edit sql.NullString
	)
	if err := rows.Scan(&m.ID, &m.ChannelID, &userID, &m.User, &text, &gifURL, &ts, &reactions, &file, &preview, &edit); err != nil {
		return nil, err
	}
	m.UserID = userID.String
	m.Text = text.String
	m.GifURL = gifURL.String

	var err error
	if m.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
		return nil, fmt.Errorf("message %s timestamp: %w", m.ID, err)
	}
	if edit.Valid && edit.String != "" {
		t, err := time.Parse(timeLayout, edit.String)
		if err != nil {
			return nil, fmt.Errorf("message %s edited: %w", m.ID, err)
		}
		m.Edited = &t
	}
	m.Reactions = domain.Reactions{}
	if err := unmarshalColumn(reactions, &m.Reactions); err != nil {
		return nil, fmt.Errorf("message %s reactions: %w", m.ID, err)
	}
	if file.Valid && file.String != "" && file.String != "null" {
		m.File = &domain.FileAttachment{}
		if err := json.Unmarshal([]byte(file.String), m.File); err != nil {
			return nil, fmt.Errorf("message %s file: %w", m.ID, err)
		}
	}
	if preview.Valid && preview.String != "" && preview.String != "null" {
		m.LinkPreview = &domain.LinkPreview{}
		if err := json.Unmarshal([]byte(preview.String), m.LinkPreview); err != nil {
			return nil, fmt.Errorf("message %s link preview: %w", m.ID, err)
		}
	}
	return &m, nil
}

func unmarshalColumn(col sql.NullString, v any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), v)
}

// nullJSON encodes v, storing NULL for nil pointers.
func nullJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

// SaveMessage upserts the full message row.
func (g *SQLGateway) SaveMessage(ctx context.Context, m *domain.Message) error {
	if m == nil || m.ID == "" {
		return voxerrors.ErrInvalidInput
	}
	reactions := m.Reactions
	if reactions == nil {
		reactions = domain.Reactions{}
	}
	rawReactions, err := json.Marshal(reactions)
	if err != nil {
		return err
	}
	file, err := nullJSON(m.File)
	if err != nil {
		return err
	}
	preview, err := nullJSON(m.LinkPreview)
	if err != nil {
		return err
	}
	var edited sql.NullString
	if m.Edited != nil {
		edited = sql.NullString{String: m.Edited.UTC().Format(timeLayout), Valid: true}
	}

	_, err = g.db.ExecContext(ctx, g.q(`
        INSERT INTO messages (id, channel_id, user_id, username, text, gif_url, timestamp, reactions, file, link_preview, edited)
        VALUES (?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT (id) DO UPDATE SET
            text = excluded.text,
            reactions = excluded.reactions,
            link_preview = excluded.link_preview,
            edited = excluded.edited
    `),
		m.ID,
		m.ChannelID,
		m.UserID,
		m.User,
		m.Text,
		m.GifURL,
		m.Timestamp.UTC().Format(timeLayout),
		string(rawReactions),
		file,
		preview,
		edited,
	)
	return err
}

func (g *SQLGateway) DeleteMessage(ctx context.Context, id string) error {
	_, err := g.db.ExecContext(ctx, g.q(`DELETE FROM messages WHERE id = ?`), id)
	return err
}

func (g *SQLGateway) Roles(ctx context.Context) ([]domain.Role, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT id, name, color, permissions FROM roles ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Role
	for rows.Next() {
		var (
			r     domain.Role
			color sql.NullString
			perms sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &color, &perms); err != nil {
			return nil, err
		}
		r.Color = color.String
		if err := unmarshalColumn(perms, &r.Permissions); err != nil {
			return nil, fmt.Errorf("role %s permissions: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceRoles swaps the role table contents. Assignments pointing at roles
// that no longer exist are removed with them.
func (g *SQLGateway) ReplaceRoles(ctx context.Context, roles []domain.Role) error {
	return WithTx(ctx, g.db, func(tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM roles`); err != nil {
			return err
		}
		ids := make([]any, 0, len(roles))
		for i, r := range roles {
			perms := r.Permissions
			if perms == nil {
				perms = []domain.Permission{}
			}
			raw, err := json.Marshal(perms)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, g.q(`
                INSERT INTO roles (id, name, color, permissions, position) VALUES (?,?,?,?,?)
            `), r.ID, r.Name, r.Color, string(raw), i); err != nil {
				return err
			}
			ids = append(ids, r.ID)
		}
		if len(ids) == 0 {
			_, err := tx.ExecContext(ctx, `DELETE FROM user_roles`)
			return err
		}
		_, err := tx.ExecContext(ctx, g.q(`DELETE FROM user_roles WHERE role_id NOT IN (`+buildPlaceholders(len(ids))+`)`), ids...)
		return err
	})
}

func (g *SQLGateway) Assignments(ctx context.Context) (map[string][]string, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT username, role_id FROM user_roles ORDER BY username, position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var name, roleID string
		if err := rows.Scan(&name, &roleID); err != nil {
			return nil, err
		}
		out[name] = append(out[name], roleID)
	}
	return out, rows.Err()
}

func (g *SQLGateway) SetUserRoles(ctx context.Context, username string, roleIDs []string) error {
	return WithTx(ctx, g.db, func(tx DBTX) error {
		if _, err := tx.ExecContext(ctx, g.q(`DELETE FROM user_roles WHERE username = ?`), username); err != nil {
			return err
		}
		for i, id := range roleIDs {
			if _, err := tx.ExecContext(ctx, g.q(`
                INSERT INTO user_roles (username, role_id, position) VALUES (?,?,?)
            `), username, id, i); err != nil {
				return err
			}
		}
		return nil
	})
}

func (g *SQLGateway) TouchUser(ctx context.Context, username string, at time.Time) error {
	_, err := g.db.ExecContext(ctx, g.q(`
        INSERT INTO users (username, last_login) VALUES (?,?)
        ON CONFLICT (username) DO UPDATE SET last_login = excluded.last_login
    `), username, at.UTC().Format(timeLayout))
	return err
}

func (g *SQLGateway) RecordLogin(ctx context.Context, l domain.LoginLog) error {
	_, err := g.db.ExecContext(ctx, g.q(`
        INSERT INTO login_logs (id, username, conn_id, login_time, ip_address) VALUES (?,?,?,?,?)
    `), l.ID, l.Username, l.ConnID, l.LoginTime.UTC().Format(timeLayout), l.IPAddress)
	if isUniqueViolation(err) {
		return voxerrors.ErrAlreadyExists
	}
	return err
}

// RecentLogins returns the newest login log entries first.
func (g *SQLGateway) RecentLogins(ctx context.Context, limit int) ([]domain.LoginLog, error) {
	rows, err := g.db.QueryContext(ctx, g.q(`
        SELECT id, username, conn_id, login_time, ip_address
        FROM login_logs
        ORDER BY login_time DESC
        LIMIT ?
    `), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LoginLog
	for rows.Next() {
		var (
			l      domain.LoginLog
			at     string
			connID sql.NullString
			ip     sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.Username, &connID, &at, &ip); err != nil {
			return nil, err
		}
		l.ConnID, l.IPAddress = connID.String, ip.String
		if l.LoginTime, err = time.Parse(timeLayout, at); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
