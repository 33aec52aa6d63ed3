package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"rocketwatch/internal/event"
	"rocketwatch/internal/labels"
	"rocketwatch/internal/storage"
)

// Store provides Postgres persistence for the queue and source state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertEvent stores a new event. Existing (topic, unique_id) rows are left
// untouched and reported with false.
func (s *Store) InsertEvent(ctx context.Context, e *event.Event) (bool, error) {
	doc, err := event.Encode(e)
	if err != nil {
		return false, fmt.Errorf("encode event: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO events (
			topic, unique_id, event_name, score, block_number, delivery_state, attempts, time_seen, doc
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (topic, unique_id) DO NOTHING
	`,
		e.Topic,
		e.UniqueID,
		e.Name,
		int64(e.Score),
		int64(e.BlockNumber),
		string(e.State),
		e.Attempts,
		e.TimeSeen,
		doc,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// PendingEvents returns pending events in dispatch order.
func (s *Store) PendingEvents(ctx context.Context, limit int) ([]*event.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT doc, delivery_state, attempts, last_error, delivered_to
		FROM events
		WHERE delivery_state = $1
		ORDER BY score ASC, time_seen ASC
		LIMIT $2
	`, string(event.StatePending), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		var (
			doc         []byte
			state       string
			attempts    int
			lastError   string
			deliveredTo []string
		)
		if err := rows.Scan(&doc, &state, &attempts, &lastError, &deliveredTo); err != nil {
			return nil, err
		}
		e, err := event.Decode(doc)
		if err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		e.State = event.State(state)
		e.Attempts = attempts
		e.LastError = lastError
		e.DeliveredTo = deliveredTo
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateEvent writes the delivery columns of an event.
func (s *Store) UpdateEvent(ctx context.Context, e *event.Event) error {
	deliveredTo := e.DeliveredTo
	if deliveredTo == nil {
		deliveredTo = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE events
		SET delivery_state = $3, attempts = $4, last_error = $5, delivered_to = $6, updated_at = now()
		WHERE topic = $1 AND unique_id = $2
	`, e.Topic, e.UniqueID, string(e.State), e.Attempts, e.LastError, deliveredTo)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, e.Key())
	}
	return nil
}

// CountByState reports how many events are in each delivery state.
func (s *Store) CountByState(ctx context.Context) (map[event.State]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT delivery_state, count(*) FROM events GROUP BY delivery_state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[event.State]int64)
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		out[event.State(state)] = n
	}
	return out, rows.Err()
}

// LoadCursor returns the saved progress of a source.
func (s *Store) LoadCursor(ctx context.Context, source string) (storage.Cursor, bool, error) {
	if source == "" {
		return storage.Cursor{}, false, fmt.Errorf("source name required")
	}
	c := storage.Cursor{Source: source}
	var lastBlock, lookback int64
	row := s.pool.QueryRow(ctx, `
		SELECT last_served_block, lookback_distance, last_run_at FROM source_cursors WHERE source=$1
	`, source)
	if err := row.Scan(&lastBlock, &lookback, &c.LastRunAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Cursor{}, false, nil
		}
		return storage.Cursor{}, false, err
	}
	c.LastBlock = uint64(lastBlock)
	c.Lookback = uint64(lookback)
	return c, true, nil
}

// SaveCursor upserts the progress of a source.
func (s *Store) SaveCursor(ctx context.Context, c storage.Cursor) error {
	if c.Source == "" {
		return fmt.Errorf("source name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO source_cursors (source, last_served_block, lookback_distance, last_run_at, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (source) DO UPDATE
		SET last_served_block = EXCLUDED.last_served_block,
			lookback_distance = EXCLUDED.lookback_distance,
			last_run_at = EXCLUDED.last_run_at,
			updated_at = now()
	`, c.Source, int64(c.LastBlock), int64(c.Lookback), c.LastRunAt)
	return err
}

// LoadGoal returns the next goal recorded for a milestone.
func (s *Store) LoadGoal(ctx context.Context, id string) (decimal.Decimal, bool, error) {
	var goal string
	row := s.pool.QueryRow(ctx, `SELECT current_goal FROM milestones_state WHERE id=$1`, id)
	if err := row.Scan(&goal); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	d, err := decimal.NewFromString(goal)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("milestone %s goal %q: %w", id, goal, err)
	}
	return d, true, nil
}

// SaveGoal upserts the next goal of a milestone.
func (s *Store) SaveGoal(ctx context.Context, id string, goal decimal.Decimal) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO milestones_state (id, current_goal, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET current_goal = EXCLUDED.current_goal, updated_at = now()
	`, id, goal.String())
	return err
}

// LastFinality returns the most recent recorded epoch and its delay.
func (s *Store) LastFinality(ctx context.Context) (uint64, uint64, bool, error) {
	var epoch, delay int64
	row := s.pool.QueryRow(ctx, `SELECT epoch, delay FROM finality_checkpoints ORDER BY epoch DESC LIMIT 1`)
	if err := row.Scan(&epoch, &delay); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	return uint64(epoch), uint64(delay), true, nil
}

func (s *Store) SaveFinality(ctx context.Context, epoch, delay uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO finality_checkpoints (epoch, delay, recorded_at)
		VALUES ($1, $2, now())
		ON CONFLICT (epoch) DO UPDATE SET delay = EXCLUDED.delay, recorded_at = now()
	`, int64(epoch), int64(delay))
	return err
}

func (s *Store) GetLabel(ctx context.Context, addr common.Address) (labels.Entry, bool, error) {
	var entry labels.Entry
	row := s.pool.QueryRow(ctx, `SELECT label, source, expires_at FROM labels_cache WHERE address=$1`, addr.Hex())
	if err := row.Scan(&entry.Label, &entry.Source, &entry.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return labels.Entry{}, false, nil
		}
		return labels.Entry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) PutLabel(ctx context.Context, addr common.Address, entry labels.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO labels_cache (address, label, source, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE
		SET label = EXCLUDED.label, source = EXCLUDED.source, expires_at = EXCLUDED.expires_at
	`, addr.Hex(), entry.Label, entry.Source, entry.ExpiresAt)
	return err
}

// PruneLabels removes entries that expired before cutoff.
func (s *Store) PruneLabels(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM labels_cache WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
