// Package sqlStore persists records in a SQL database through bun. The
// table mirrors the classic block schema: owner, signature and secret are
// kept as uppercase hex text.
package sqlStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/i5heu/ouroboros-blocks/pkg/codec"
	"github.com/i5heu/ouroboros-blocks/pkg/model"
	"github.com/i5heu/ouroboros-blocks/pkg/secret"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// ErrCorruptRecord marks a stored row whose hex columns no longer decode.
var ErrCorruptRecord = errors.New("sql store: corrupt record")

type blockRow struct {
	bun.BaseModel `bun:"table:block"`

	ID          string `bun:"id,pk"`
	PublicKey   string `bun:"public_key,notnull,unique:block_identity"`
	DataGroup   string `bun:"data_group,notnull,unique:block_identity"`
	DataKey     string `bun:"data_key,notnull,unique:block_identity"`
	DataBlock   []byte `bun:"data_block,notnull"`
	DataVersion string `bun:"data_version,notnull"`
	Signature   string `bun:"signature,notnull"`
	Secret      string `bun:"secret,notnull"`
}

// Config configures the SQL store.
type Config struct {
	// DSN is a sqlite data source, e.g. "file:data/blocks.db".
	DSN    string
	Logger *slog.Logger
}

// Store implements ownership.RecordStore on bun.
type Store struct {
	db  *bun.DB
	log *slog.Logger
}

// Open connects to the database and creates the schema if needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("sql store: empty dsn")
	}
	if err := ensureSQLiteDir(dsn); err != nil {
		return nil, fmt.Errorf("sql store: %w", err)
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql store: open sqlite: %w", err)
	}
	// sqlite allows a single writer; one connection avoids SQLITE_BUSY.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	cfg.Logger.Info("sql store opened", "dsn", dsn)
	return NewStore(db, cfg.Logger), nil
}

// NewStore wraps an existing bun handle whose schema is already in place.
func NewStore(db *bun.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, log: logger}
}

func ensureSchema(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*blockRow)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("sql store: create table: %w", err)
	}
	return nil
}

func ensureSQLiteDir(dsn string) error {
	if !strings.HasPrefix(dsn, "file:") {
		return nil
	}
	path := strings.TrimPrefix(dsn, "file:")
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Exists reports whether owner has any record.
func (s *Store) Exists(ctx context.Context, owner codec.Point) (bool, error) {
	return s.db.NewSelect().
		Model((*blockRow)(nil)).
		Where("public_key = ?", owner.Hex()).
		Exists(ctx)
}

// Groups returns the distinct groups of owner in sorted order.
func (s *Store) Groups(ctx context.Context, owner codec.Point) ([]string, error) {
	groups := []string{}
	err := s.db.NewSelect().
		Model((*blockRow)(nil)).
		Distinct().
		Column("data_group").
		Where("public_key = ?", owner.Hex()).
		OrderExpr("data_group ASC").
		Scan(ctx, &groups)
	return groups, err
}

// Keys returns the keys of one group in sorted order.
func (s *Store) Keys(ctx context.Context, owner codec.Point, group string) ([]string, error) {
	keys := []string{}
	err := s.db.NewSelect().
		Model((*blockRow)(nil)).
		Column("data_key").
		Where("public_key = ? AND data_group = ?", owner.Hex(), group).
		OrderExpr("data_key ASC").
		Scan(ctx, &keys)
	return keys, err
}

// List returns every record of one group ordered by key.
func (s *Store) List(ctx context.Context, owner codec.Point, group string) ([]model.Record, error) {
	var rows []blockRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("public_key = ? AND data_group = ?", owner.Hex(), group).
		OrderExpr("data_key ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get reads one record.
func (s *Store) Get(ctx context.Context, owner codec.Point, group, key string) (model.Record, error) {
	var row blockRow
	err := s.db.NewSelect().
		Model(&row).
		Where("public_key = ? AND data_group = ? AND data_key = ?", owner.Hex(), group, key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, model.ErrRecordNotFound
	}
	if err != nil {
		return model.Record{}, err
	}
	return fromRow(row)
}

// Insert adds a record, failing with model.ErrRecordExists when the
// composite key is taken.
func (s *Store) Insert(ctx context.Context, rec model.Record) error {
	row := toRow(rec)
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*blockRow)(nil)).
			Where("public_key = ? AND data_group = ? AND data_key = ?",
				row.PublicKey, row.DataGroup, row.DataKey).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return model.ErrRecordExists
		}
		_, err = tx.NewInsert().Model(row).Exec(ctx)
		return err
	})
}

// Update overwrites the mutable columns of record id. The write only
// applies while the stored secret equals expected, so writers in other
// processes sharing the database cannot both rotate from the same secret.
func (s *Store) Update(
	ctx context.Context,
	id string,
	expected secret.Secret,
	block []byte,
	version string,
	signature codec.Pair,
	next secret.Secret,
) error {
	res, err := s.db.NewUpdate().
		Model((*blockRow)(nil)).
		Set("data_block = ?", nonNil(block)).
		Set("data_version = ?", version).
		Set("signature = ?", signature.Hex()).
		Set("secret = ?", next.Hex()).
		Where("id = ?", id).
		Where("secret = ?", expected.Hex()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.requireOneRow(ctx, res, id)
}

// Delete removes record id if its stored secret equals expected.
func (s *Store) Delete(ctx context.Context, id string, expected secret.Secret) error {
	res, err := s.db.NewDelete().
		Model((*blockRow)(nil)).
		Where("id = ?", id).
		Where("secret = ?", expected.Hex()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.requireOneRow(ctx, res, id)
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	s.log.Info("sql store closing")
	return s.db.Close()
}

// requireOneRow tells a missing record apart from a stale secret when a
// guarded write touched nothing.
func (s *Store) requireOneRow(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	exists, err := s.db.NewSelect().
		Model((*blockRow)(nil)).
		Where("id = ?", id).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return model.ErrSecretMismatch
	}
	return model.ErrRecordNotFound
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func toRow(rec model.Record) *blockRow {
	return &blockRow{
		ID:          rec.ID,
		PublicKey:   rec.Owner.Hex(),
		DataGroup:   rec.Group,
		DataKey:     rec.Key,
		DataBlock:   nonNil(rec.Block),
		DataVersion: rec.Version,
		Signature:   rec.Signature.Hex(),
		Secret:      rec.Secret.Hex(),
	}
}

func fromRow(row blockRow) (model.Record, error) {
	owner, err := codec.DecodePoint(row.PublicKey)
	if err != nil {
		return model.Record{}, fmt.Errorf("%w: public key: %v", ErrCorruptRecord, err)
	}
	sig, err := codec.DecodePair(row.Signature)
	if err != nil {
		return model.Record{}, fmt.Errorf("%w: signature: %v", ErrCorruptRecord, err)
	}
	sec, err := secret.Parse(row.Secret)
	if err != nil {
		return model.Record{}, fmt.Errorf("%w: secret: %v", ErrCorruptRecord, err)
	}
	return model.Record{
		ID:        row.ID,
		Owner:     owner,
		Group:     row.DataGroup,
		Key:       row.DataKey,
		Block:     nonNil(row.DataBlock),
		Version:   row.DataVersion,
		Signature: sig,
		Secret:    sec,
	}, nil
}
