package sync

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"

	"github.com/greengrass-edge/shadow-sync/internal/shadowid"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const walJournalSizeLimit = 67108864 // 64 MiB

// Page is one page of a listNamed query.
type Page struct {
	Names     []string
	NextToken string
}

// Store is the abstract persistent-store contract. Any
// ordered key-value engine satisfying it is acceptable; SQLiteStore below is
// the reference implementation.
type Store interface {
	GetShadow(ctx context.Context, id shadowid.Identity) (*Document, error)
	UpdateShadow(ctx context.Context, id shadowid.Identity, doc *Document) (*Document, error)
	DeleteShadow(ctx context.Context, id shadowid.Identity) error
	ListNamed(ctx context.Context, thing string, pageSize int, token string) (Page, error)
	GetSync(ctx context.Context, id shadowid.Identity) (*SyncRecord, error)
	PutSync(ctx context.Context, id shadowid.Identity, rec *SyncRecord) error
	ClearSync(ctx context.Context, id shadowid.Identity) error
	Close() error
}

// SyncRecord is the per-identity cloud-sync bookkeeping row.
type SyncRecord struct {
	CloudVersion    int64
	CloudUpdateTime int64
	CloudDocument   *Document
	CloudDeleted    bool
	LastSyncTime    int64
}

// SQLiteStore implements Store over an embedded SQLite database in WAL
// mode, migrated with goose. Grounded on tonimelisma-onedrive-go's
// internal/sync state store: single *sql.DB, SetMaxOpenConns(1) sole-writer
// discipline, prepared statements grouped by domain.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	stmts preparedStatements
}

type preparedStatements struct {
	getDoc, upsertDoc, deleteDoc, listNamed *sql.Stmt
	getSync, putSync, clearSync             *sql.Stmt
}

// NewSQLiteStore opens dbPath (":memory:" for tests), applies pragmas and
// migrations, and prepares all repeated statements.
func NewSQLiteStore(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening shadow store", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, Fatal("opening sqlite database", err)
	}

	db.SetMaxOpenConns(1)

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, Fatal("preparing statements", err)
	}

	return s, nil
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return Fatal(fmt.Sprintf("setting pragma %q", p), err)
		}
	}

	return nil
}

// runMigrations applies every pending migration exactly once via goose.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return Fatal("creating migration sub-filesystem", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return Fatal("creating migration provider", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return Fatal("running migrations", err)
	}

	for _, r := range results {
		logger.Info("applied migration", slog.String("source", r.Source.Path))
	}

	return nil
}

func (s *SQLiteStore) prepareStatements(ctx context.Context) error {
	var err error

	prepare := func(q string) *sql.Stmt {
		if err != nil {
			return nil
		}

		var stmt *sql.Stmt
		stmt, err = s.db.PrepareContext(ctx, q)

		return stmt
	}

	s.stmts.getDoc = prepare(`SELECT doc, version, deleted, update_time FROM documents WHERE thing = ? AND shadow = ?`)
	s.stmts.upsertDoc = prepare(`INSERT INTO documents (thing, shadow, doc, version, deleted, update_time)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(thing, shadow) DO UPDATE SET doc=excluded.doc, version=excluded.version,
			deleted=excluded.deleted, update_time=excluded.update_time`)
	s.stmts.deleteDoc = prepare(`UPDATE documents SET deleted = 1, update_time = ? WHERE thing = ? AND shadow = ?`)
	s.stmts.listNamed = prepare(`SELECT shadow FROM documents WHERE thing = ? AND shadow <> '' AND shadow > ? AND deleted = 0 ORDER BY shadow LIMIT ?`)
	s.stmts.getSync = prepare(`SELECT cloud_doc, cloud_version, cloud_deleted, cloud_update_time, last_sync_time FROM sync_records WHERE thing = ? AND shadow = ?`)
	s.stmts.putSync = prepare(`INSERT INTO sync_records (thing, shadow, cloud_doc, cloud_version, cloud_deleted, cloud_update_time, last_sync_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thing, shadow) DO UPDATE SET cloud_doc=excluded.cloud_doc, cloud_version=excluded.cloud_version,
			cloud_deleted=excluded.cloud_deleted, cloud_update_time=excluded.cloud_update_time, last_sync_time=excluded.last_sync_time`)
	s.stmts.clearSync = prepare(`DELETE FROM sync_records WHERE thing = ? AND shadow = ?`)

	return err
}

// GetShadow returns nil, nil if the identity has no row.
func (s *SQLiteStore) GetShadow(ctx context.Context, id shadowid.Identity) (*Document, error) {
	var raw []byte

	var version int64

	var deleted int

	var updateTime int64

	row := s.stmts.getDoc.QueryRowContext(ctx, id.ThingName, id.ShadowName)

	err := row.Scan(&raw, &version, &deleted, &updateTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, Fatal("reading shadow document", err)
	}

	doc := &Document{}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, Fatal("decoding stored document", err)
	}

	doc.Version = version
	doc.Deleted = deleted != 0
	doc.Timestamp = updateTime

	return doc, nil
}

// UpdateShadow persists doc as the new row for id, returning the stored
// document. Callers are responsible for the version/merge logic; this is a
// raw upsert.
func (s *SQLiteStore) UpdateShadow(ctx context.Context, id shadowid.Identity, doc *Document) (*Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, Fatal("encoding document for storage", err)
	}

	deleted := 0
	if doc.Deleted {
		deleted = 1
	}

	if _, err := s.stmts.upsertDoc.ExecContext(ctx, id.ThingName, id.ShadowName, raw, doc.Version, deleted, doc.Timestamp); err != nil {
		return nil, Fatal("writing shadow document", err)
	}

	return doc, nil
}

// DeleteShadow soft-deletes the row, marking it tombstoned without removing
// the history of the document's version.
func (s *SQLiteStore) DeleteShadow(ctx context.Context, id shadowid.Identity) error {
	if _, err := s.stmts.deleteDoc.ExecContext(ctx, time.Now().Unix(), id.ThingName, id.ShadowName); err != nil {
		return Fatal("soft-deleting shadow document", err)
	}

	return nil
}

// ListNamed returns named shadows for thing in lexical order starting after
// token, at most pageSize entries, with an opaque next-page token
// order for a stable pagination
// token").
func (s *SQLiteStore) ListNamed(ctx context.Context, thing string, pageSize int, token string) (Page, error) {
	if pageSize <= 0 {
		pageSize = 50
	}

	rows, err := s.stmts.listNamed.QueryContext(ctx, thing, token, pageSize)
	if err != nil {
		return Page{}, Fatal("listing named shadows", err)
	}
	defer rows.Close()

	var page Page

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return Page{}, Fatal("scanning named shadow row", err)
		}

		page.Names = append(page.Names, name)
	}

	if err := rows.Err(); err != nil {
		return Page{}, Fatal("iterating named shadow rows", err)
	}

	if len(page.Names) == pageSize {
		page.NextToken = page.Names[len(page.Names)-1]
	}

	return page, nil
}

// GetSync returns nil, nil if no sync record exists for id.
func (s *SQLiteStore) GetSync(ctx context.Context, id shadowid.Identity) (*SyncRecord, error) {
	var cloudDoc sql.NullString

	var version int64

	var deleted int

	var updateTime, lastSync int64

	row := s.stmts.getSync.QueryRowContext(ctx, id.ThingName, id.ShadowName)

	err := row.Scan(&cloudDoc, &version, &deleted, &updateTime, &lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, Fatal("reading sync record", err)
	}

	rec := &SyncRecord{
		CloudVersion:    version,
		CloudUpdateTime: updateTime,
		CloudDeleted:    deleted != 0,
		LastSyncTime:    lastSync,
	}

	if cloudDoc.Valid && cloudDoc.String != "" {
		doc := &Document{}
		if err := json.Unmarshal([]byte(cloudDoc.String), doc); err != nil {
			return nil, Fatal("decoding stored sync-record cloud document", err)
		}

		rec.CloudDocument = doc
	}

	return rec, nil
}

// PutSync upserts the sync record for id.
func (s *SQLiteStore) PutSync(ctx context.Context, id shadowid.Identity, rec *SyncRecord) error {
	var cloudDocRaw sql.NullString

	if rec.CloudDocument != nil {
		raw, err := json.Marshal(rec.CloudDocument)
		if err != nil {
			return Fatal("encoding sync-record cloud document", err)
		}

		cloudDocRaw = sql.NullString{String: string(raw), Valid: true}
	}

	deleted := 0
	if rec.CloudDeleted {
		deleted = 1
	}

	if _, err := s.stmts.putSync.ExecContext(ctx, id.ThingName, id.ShadowName, cloudDocRaw,
		rec.CloudVersion, deleted, rec.CloudUpdateTime, rec.LastSyncTime); err != nil {
		return Fatal("writing sync record", err)
	}

	return nil
}

// ClearSync removes the sync record for id.
func (s *SQLiteStore) ClearSync(ctx context.Context, id shadowid.Identity) error {
	if _, err := s.stmts.clearSync.ExecContext(ctx, id.ThingName, id.ShadowName); err != nil {
		return Fatal("clearing sync record", err)
	}

	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
