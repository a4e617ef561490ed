package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/domain"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/ports"
	_ "modernc.org/sqlite" // Local SQLite driver
)

// timeLayout is fixed width so TEXT ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbURL string) (*SQLiteRepository, error) {
	driverName := "sqlite"
	if strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://") {
		driverName = "libsql"
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, unavailable("open", err)
	}

	if driverName == "sqlite" {
		// One writer at a time; keeps in-memory databases on a single connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		_, _ = db.Exec("PRAGMA busy_timeout = 5000;")
		_, _ = db.Exec("PRAGMA journal_mode = WAL;")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, unavailable("ping", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, unavailable("migrate", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS routing_records (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		hits INTEGER NOT NULL DEFAULT 0,
		created TEXT NOT NULL,
		expiry TEXT,
		click_cap INTEGER,
		rate_limit JSON,
		password_protected INTEGER NOT NULL DEFAULT 0,
		password TEXT,
		geo_fence JSON,
		device_routing JSON,
		time_routing JSON,
		webhook_url TEXT
	);
	`
	_, err := db.Exec(query)
	return err
}

// Close releases the underlying DB.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

const selectColumns = `id, url, hits, created, expiry, click_cap, rate_limit, password_protected,
	password, geo_fence, device_routing, time_routing, webhook_url`

// Lookup returns the record for key, or domain.ErrNotFound.
func (r *SQLiteRepository) Lookup(ctx context.Context, key string) (*domain.RoutingRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM routing_records WHERE id = ?`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("lookup "+key, err)
	}
	return rec, nil
}

// InsertIfAbsent creates the record, or returns domain.ErrAlreadyExists.
func (r *SQLiteRepository) InsertIfAbsent(ctx context.Context, rec *domain.RoutingRecord) error {
	query := `INSERT INTO routing_records (id, url, hits, created, expiry, click_cap, rate_limit,
		password_protected, password, geo_fence, device_routing, time_routing, webhook_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`

	rateLimit, err := jsonColumn(rec.RateLimit)
	if err != nil {
		return err
	}
	geoFence, err := jsonColumn(rec.GeoFence)
	if err != nil {
		return err
	}
	deviceRouting, err := jsonColumn(rec.DeviceRouting)
	if err != nil {
		return err
	}
	timeRouting, err := jsonColumn(rec.TimeRouting)
	if err != nil {
		return err
	}

	var expiry, clickCap any
	if rec.Expiry != nil {
		expiry = rec.Expiry.UTC().Format(timeLayout)
	}
	if rec.ClickCap != nil {
		clickCap = *rec.ClickCap
	}

	res, err := r.db.ExecContext(ctx, query,
		rec.Key, rec.TargetURL, rec.Hits, rec.Created.UTC().Format(timeLayout), expiry, clickCap,
		rateLimit, rec.PasswordProtected, nullString(rec.Password), geoFence, deviceRouting,
		timeRouting, nullString(rec.WebhookURL),
	)
	if err != nil {
		return unavailable("insert "+rec.Key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("insert "+rec.Key, err)
	}
	if n == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// UpdateTarget changes the stored target URL. Used by administrative updates only.
func (r *SQLiteRepository) UpdateTarget(ctx context.Context, key, targetURL string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE routing_records SET url = ? WHERE id = ?`, targetURL, key)
	if err != nil {
		return unavailable("update "+key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("update "+key, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncrementHits adds one hit in a single statement and returns the new count.
func (r *SQLiteRepository) IncrementHits(ctx context.Context, key string) (int64, error) {
	var hits int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE routing_records SET hits = hits + 1 WHERE id = ? RETURNING hits`, key,
	).Scan(&hits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, unavailable("increment "+key, err)
	}
	return hits, nil
}

// IncrementHitsBelow adds one hit only while hits < ceiling. When the row is
// at the ceiling it returns domain.ErrCapReached.
func (r *SQLiteRepository) IncrementHitsBelow(ctx context.Context, key string, ceiling int64) (int64, error) {
	var hits int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE routing_records SET hits = hits + 1 WHERE id = ? AND hits < ? RETURNING hits`, key, ceiling,
	).Scan(&hits)
	if err == nil {
		return hits, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, unavailable("increment "+key, err)
	}

	// Nothing updated: either missing or capped.
	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM routing_records WHERE id = ?`, key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, unavailable("increment "+key, err)
	}
	return 0, domain.ErrCapReached
}

func (r *SQLiteRepository) Dump(ctx context.Context) ([]domain.RoutingRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM routing_records ORDER BY created`)
	if err != nil {
		return nil, unavailable("dump", err)
	}
	defer rows.Close()

	var records []domain.RoutingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, unavailable("dump", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("dump", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.RoutingRecord, error) {
	var rec domain.RoutingRecord
	var created string
	var expiry, password, webhookURL sql.NullString
	var clickCap sql.NullInt64
	var rateLimit, geoFence, deviceRouting, timeRouting []byte

	err := row.Scan(
		&rec.Key, &rec.TargetURL, &rec.Hits, &created, &expiry, &clickCap, &rateLimit,
		&rec.PasswordProtected, &password, &geoFence, &deviceRouting, &timeRouting, &webhookURL,
	)
	if err != nil {
		return nil, err
	}

	if rec.Created, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("created: %w", err)
	}
	if expiry.Valid {
		t, err := time.Parse(timeLayout, expiry.String)
		if err != nil {
			return nil, fmt.Errorf("expiry: %w", err)
		}
		rec.Expiry = &t
	}
	if clickCap.Valid {
		c := clickCap.Int64
		rec.ClickCap = &c
	}
	rec.Password = password.String
	rec.WebhookURL = webhookURL.String

	if err := decodeColumn(rateLimit, &rec.RateLimit); err != nil {
		return nil, fmt.Errorf("rate_limit: %w", err)
	}
	if err := decodeColumn(geoFence, &rec.GeoFence); err != nil {
		return nil, fmt.Errorf("geo_fence: %w", err)
	}
	if err := decodeColumn(deviceRouting, &rec.DeviceRouting); err != nil {
		return nil, fmt.Errorf("device_routing: %w", err)
	}
	if err := decodeColumn(timeRouting, &rec.TimeRouting); err != nil {
		return nil, fmt.Errorf("time_routing: %w", err)
	}
	return &rec, nil
}

// jsonColumn encodes v, storing NULL for a nil policy.
func jsonColumn[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeColumn[T any](raw []byte, dst **T) error {
	if len(raw) == 0 || string(raw) == "null" {
		*dst = nil
		return nil
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return err
	}
	*dst = v
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}

// Ensure interface compliance
var _ ports.RecordRepository = (*SQLiteRepository)(nil)
