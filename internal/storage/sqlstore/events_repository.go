package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Togather-Foundation/orbit/internal/domain/events"
	"github.com/Togather-Foundation/orbit/internal/storage"
	"github.com/jmoiron/sqlx"
)

// EventRepository implements events.Repository. q is the pool, or the transaction when the
// repository was handed out by WithTx.
type EventRepository struct {
	db      *sqlx.DB
	q       queryer
	tx      *sqlx.Tx
	dialect storage.Dialect
}

var _ events.Repository = (*EventRepository)(nil)

func (r *EventRepository) WithTx(ctx context.Context, fn func(context.Context, events.Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txRepo := &EventRepository{db: r.db, q: tx, tx: tx, dialect: r.dialect}
	if err := fn(ctx, txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after error %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *EventRepository) rebind(query string) string {
	return r.dialect.Rebind(query)
}

func (r *EventRepository) Create(ctx context.Context, p events.EventCreateParams) (events.Event, error) {
	var id int64
	err := r.q.QueryRowContext(ctx, r.rebind(`
INSERT INTO events (creator_id, title, event_date, event_time, category, description,
                    capacity, location, location_name, image_url, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id
`),
		p.CreatorID, p.Title, p.Date, p.Time, p.Category, p.Description,
		nullableInt(p.Capacity), p.Location, p.LocationName, p.ImageURL, p.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		if r.dialect.IsUniqueViolation(err) {
			return events.Event{}, events.ErrDuplicateEvent
		}
		return events.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return r.Get(ctx, id, 0)
}

func (r *EventRepository) ExistsForCreator(ctx context.Context, creatorID int64, title, date string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, r.rebind(`
SELECT EXISTS (
  SELECT 1 FROM events WHERE creator_id = ? AND title = ? AND event_date = ?
)`), creatorID, title, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate event: %w", err)
	}
	return exists, nil
}

// eventColumns selects one row per event with its participant count and whether the viewer
// (first placeholder) has joined.
const eventColumns = `
SELECT e.id, e.creator_id, u.username AS creator_name, e.title, e.event_date, e.event_time,
       e.category, e.description, e.capacity, e.location, e.location_name, e.image_url,
       e.created_at,
       COALESCE(pc.participant_count, 0) AS participant_count,
       CASE WHEN me.user_id IS NULL THEN 0 ELSE 1 END AS joined
  FROM events e
  JOIN users u ON u.id = e.creator_id
  LEFT JOIN (
        SELECT event_id, COUNT(*) AS participant_count
          FROM participants
         GROUP BY event_id
       ) pc ON pc.event_id = e.id
  LEFT JOIN participants me ON me.event_id = e.id AND me.user_id = ?
`

type eventRow struct {
	ID               int64         `db:"id"`
	CreatorID        int64         `db:"creator_id"`
	CreatorName      string        `db:"creator_name"`
	Title            string        `db:"title"`
	Date             string        `db:"event_date"`
	Time             string        `db:"event_time"`
	Category         string        `db:"category"`
	Description      string        `db:"description"`
	Capacity         sql.NullInt64 `db:"capacity"`
	Location         string        `db:"location"`
	LocationName     string        `db:"location_name"`
	ImageURL         string        `db:"image_url"`
	CreatedAt        time.Time     `db:"created_at"`
	ParticipantCount int           `db:"participant_count"`
	Joined           int           `db:"joined"`
}

func (row eventRow) event() events.Event {
	e := events.Event{
		ID:               row.ID,
		CreatorID:        row.CreatorID,
		CreatorName:      row.CreatorName,
		Title:            row.Title,
		Date:             row.Date,
		Time:             row.Time,
		Category:         row.Category,
		Description:      row.Description,
		Location:         row.Location,
		LocationName:     row.LocationName,
		ImageURL:         row.ImageURL,
		CreatedAt:        row.CreatedAt,
		ParticipantCount: row.ParticipantCount,
		Joined:           row.Joined == 1,
	}
	if row.Capacity.Valid {
		c := int(row.Capacity.Int64)
		e.Capacity = &c
	}
	return e
}

func (r *EventRepository) Get(ctx context.Context, eventID, viewerID int64) (events.Event, error) {
	var row eventRow
	if err := sqlx.GetContext(ctx, r.q, &row, r.rebind(eventColumns+` WHERE e.id = ?`), viewerID, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return events.Event{}, events.ErrNotFound
		}
		return events.Event{}, fmt.Errorf("get event: %w", err)
	}
	return row.event(), nil
}

func (r *EventRepository) LockForJoin(ctx context.Context, eventID int64) (*int, error) {
	var capacity sql.NullInt64
	err := r.q.QueryRowContext(ctx, r.rebind(`SELECT capacity FROM events WHERE id = ?`+r.dialect.ForUpdate()), eventID).
		Scan(&capacity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("lock event: %w", err)
	}
	if !capacity.Valid {
		return nil, nil
	}
	c := int(capacity.Int64)
	return &c, nil
}

func (r *EventRepository) CreatorOf(ctx context.Context, eventID int64) (int64, error) {
	var creatorID int64
	err := r.q.QueryRowContext(ctx, r.rebind(`SELECT creator_id FROM events WHERE id = ?`), eventID).Scan(&creatorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, events.ErrNotFound
		}
		return 0, fmt.Errorf("get event creator: %w", err)
	}
	return creatorID, nil
}

// Delete removes the event and its dependent rows. The explicit child deletes keep the result
// identical whether or not the engine enforces the cascading foreign keys.
func (r *EventRepository) Delete(ctx context.Context, eventID int64) error {
	return r.WithTx(ctx, func(ctx context.Context, tx events.Repository) error {
		q := tx.(*EventRepository).q
		for _, stmt := range []string{
			`DELETE FROM comments WHERE event_id = ?`,
			`DELETE FROM participants WHERE event_id = ?`,
		} {
			if _, err := q.ExecContext(ctx, r.rebind(stmt), eventID); err != nil {
				return fmt.Errorf("delete event children: %w", err)
			}
		}
		res, err := q.ExecContext(ctx, r.rebind(`DELETE FROM events WHERE id = ?`), eventID)
		if err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return events.ErrNotFound
		}
		return nil
	})
}

// DeleteBefore removes every event dated before cutoffDate along with its participants and
// comments, returning the number of events removed.
func (r *EventRepository) DeleteBefore(ctx context.Context, cutoffDate string) (int64, error) {
	var deleted int64
	err := r.WithTx(ctx, func(ctx context.Context, tx events.Repository) error {
		q := tx.(*EventRepository).q
		for _, stmt := range []string{
			`DELETE FROM comments WHERE event_id IN (SELECT id FROM events WHERE event_date < ?)`,
			`DELETE FROM participants WHERE event_id IN (SELECT id FROM events WHERE event_date < ?)`,
		} {
			if _, err := q.ExecContext(ctx, r.rebind(stmt), cutoffDate); err != nil {
				return fmt.Errorf("delete expired children: %w", err)
			}
		}
		res, err := q.ExecContext(ctx, r.rebind(`DELETE FROM events WHERE event_date < ?`), cutoffDate)
		if err != nil {
			return fmt.Errorf("delete expired events: %w", err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete expired events: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r *EventRepository) List(ctx context.Context, query events.ListQuery) ([]events.Event, error) {
	var (
		where []string
		args  = []any{query.ViewerID}
	)

	switch query.Scope {
	case events.ScopeUpcoming:
		where = append(where, "e.event_date >= ?")
		args = append(args, query.Today)
	case events.ScopePast:
		where = append(where, "e.event_date < ?")
		args = append(args, query.Today)
	}
	if query.Search != "" {
		pattern := "%" + escapeLike(query.Search) + "%"
		where = append(where, "("+r.dialect.ILike("e.title")+" OR "+r.dialect.ILike("e.description")+")")
		args = append(args, pattern, pattern)
	}
	if query.Category != "" {
		where = append(where, "e.category = ?")
		args = append(args, query.Category)
	}
	if query.CreatorID != 0 {
		where = append(where, "e.creator_id = ?")
		args = append(args, query.CreatorID)
	}
	if query.ParticipantID != 0 {
		where = append(where, "EXISTS (SELECT 1 FROM participants p WHERE p.event_id = e.id AND p.user_id = ?)")
		args = append(args, query.ParticipantID)
	}

	var b strings.Builder
	b.WriteString(eventColumns)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if query.Scope == events.ScopePast {
		b.WriteString(" ORDER BY e.event_date DESC, e.event_time DESC, e.id DESC")
	} else {
		b.WriteString(" ORDER BY e.event_date ASC, e.event_time ASC, e.id ASC")
	}

	var rows []eventRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.rebind(b.String()), args...); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	var items []events.Event
	for _, row := range rows {
		items = append(items, row.event())
	}
	return items, nil
}

func (r *EventRepository) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	if err := sqlx.SelectContext(ctx, r.q, &categories, `SELECT DISTINCT category FROM events ORDER BY category`); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (r *EventRepository) IsParticipant(ctx context.Context, userID, eventID int64) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, r.rebind(`
SELECT EXISTS (SELECT 1 FROM participants WHERE user_id = ? AND event_id = ?)`), userID, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return exists, nil
}

func (r *EventRepository) CountParticipants(ctx context.Context, eventID int64) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM participants WHERE event_id = ?`), eventID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return n, nil
}

func (r *EventRepository) AddParticipant(ctx context.Context, userID, eventID int64, joinedAt time.Time) error {
	_, err := r.q.ExecContext(ctx, r.rebind(`
INSERT INTO participants (user_id, event_id, joined_at) VALUES (?, ?, ?)`), userID, eventID, joinedAt.UTC())
	if err != nil {
		if r.dialect.IsUniqueViolation(err) {
			return events.ErrAlreadyJoined
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (r *EventRepository) RemoveParticipant(ctx context.Context, userID, eventID int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, r.rebind(`DELETE FROM participants WHERE user_id = ? AND event_id = ?`), userID, eventID)
	if err != nil {
		return false, fmt.Errorf("delete participant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete participant: %w", err)
	}
	return n > 0, nil
}

// ParticipantNames returns the usernames of an event's participants, sorted. Usernames cannot
// contain a comma, so the aggregate is split on it.
func (r *EventRepository) ParticipantNames(ctx context.Context, eventID int64) ([]string, error) {
	var joined sql.NullString
	err := r.q.QueryRowContext(ctx, r.rebind(`
SELECT `+r.dialect.StringAgg("u.username", "','")+`
  FROM participants p
  JOIN users u ON u.id = p.user_id
 WHERE p.event_id = ?`), eventID).Scan(&joined)
	if err != nil {
		return nil, fmt.Errorf("participant names: %w", err)
	}
	if !joined.Valid || joined.String == "" {
		return []string{}, nil
	}
	names := strings.Split(joined.String, ",")
	sort.Strings(names)
	return names, nil
}

func (r *EventRepository) AddComment(ctx context.Context, p events.CommentCreateParams) (events.Comment, error) {
	c := events.Comment{
		EventID:   p.EventID,
		UserID:    p.UserID,
		Content:   p.Content,
		CreatedAt: p.CreatedAt.UTC(),
	}
	err := r.q.QueryRowContext(ctx, r.rebind(`
INSERT INTO comments (event_id, user_id, content, created_at)
VALUES (?, ?, ?, ?)
RETURNING id
`), p.EventID, p.UserID, p.Content, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return events.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	err = r.q.QueryRowContext(ctx, r.rebind(`SELECT username FROM users WHERE id = ?`), p.UserID).Scan(&c.Username)
	if err != nil {
		return events.Comment{}, fmt.Errorf("comment author: %w", err)
	}
	return c, nil
}

func (r *EventRepository) ListComments(ctx context.Context, eventID int64) ([]events.Comment, error) {
	var rows []commentRow
	err := sqlx.SelectContext(ctx, r.q, &rows, r.rebind(`
SELECT c.id, c.event_id, c.user_id, u.username, c.content, c.created_at
  FROM comments c
  JOIN users u ON u.id = c.user_id
 WHERE c.event_id = ?
 ORDER BY c.created_at DESC, c.id DESC
`), eventID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	var comments []events.Comment
	for _, row := range rows {
		comments = append(comments, events.Comment(row))
	}
	return comments, nil
}

type commentRow struct {
	ID        int64     `db:"id"`
	EventID   int64     `db:"event_id"`
	UserID    int64     `db:"user_id"`
	Username  string    `db:"username"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

// escapeLike escapes LIKE wildcards so user search text matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
