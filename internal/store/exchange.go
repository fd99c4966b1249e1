package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Exchange is one logged prompt and reply.
type Exchange struct {
	ID         string
	Source     string
	Gesture    string
	Prompt     string
	Response   string
	Language   string
	Error      string
	Spoken     bool
	StartedAt  time.Time
	DurationMs int64
}

// Stats summarises the exchange log.
type Stats struct {
	Total     int
	Spoken    int
	Failed    int
	BySource  map[string]int
	ByGesture map[string]int
}

// ExchangeRepository reads and writes exchanges.
type ExchangeRepository struct {
	db *sql.DB
}

// Exchanges returns the exchange repository for this store.
func (s *Store) Exchanges() *ExchangeRepository {
	return &ExchangeRepository{db: s.db}
}

// Create inserts e, assigning an ID when it has none.
func (r *ExchangeRepository) Create(e *Exchange) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO exchanges (id, source, gesture, prompt, response, language, error, spoken, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Source, e.Gesture, e.Prompt, e.Response, e.Language, e.Error,
		boolInt(e.Spoken), e.StartedAt.UnixMilli(), e.DurationMs,
	)
	return err
}

const exchangeColumns = `id, source, gesture, prompt, response, language, error, spoken, started_at, duration_ms`

// GetByID retrieves an exchange by its ID.
func (r *ExchangeRepository) GetByID(id string) (*Exchange, error) {
	e, err := scanExchange(r.db.QueryRow(`SELECT `+exchangeColumns+` FROM exchanges WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// List returns the newest exchanges first. limit <= 0 uses DefaultListLimit.
func (r *ExchangeRepository) List(limit int) ([]*Exchange, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.Query(
		`SELECT `+exchangeColumns+` FROM exchanges ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Exchange
	for rows.Next() {
		e, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteBefore removes exchanges that started before t and returns how many went.
func (r *ExchangeRepository) DeleteBefore(t time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM exchanges WHERE started_at < ?`, t.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Stats counts exchanges by outcome, source and gesture.
func (r *ExchangeRepository) Stats() (*Stats, error) {
	st := &Stats{BySource: map[string]int{}, ByGesture: map[string]int{}}

	err := r.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(spoken), 0), COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0)
		 FROM exchanges`,
	).Scan(&st.Total, &st.Spoken, &st.Failed)
	if err != nil {
		return nil, err
	}

	if err := r.countBy("source", st.BySource); err != nil {
		return nil, err
	}
	if err := r.countBy("gesture", st.ByGesture); err != nil {
		return nil, err
	}
	delete(st.ByGesture, "")
	return st, nil
}

func (r *ExchangeRepository) countBy(column string, into map[string]int) error {
	// column is one of two fixed names, never user input.
	rows, err := r.db.Query(`SELECT ` + column + `, COUNT(*) FROM exchanges GROUP BY ` + column)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExchange(row scanner) (*Exchange, error) {
	e := &Exchange{}
	var spoken int
	var startedMs int64

	err := row.Scan(&e.ID, &e.Source, &e.Gesture, &e.Prompt, &e.Response, &e.Language,
		&e.Error, &spoken, &startedMs, &e.DurationMs)
	if err != nil {
		return nil, err
	}

	e.Spoken = spoken != 0
	e.StartedAt = time.UnixMilli(startedMs)
	return e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
