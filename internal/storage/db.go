package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"ocrr/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS catalog_entries (
  reference TEXT PRIMARY KEY,
  model TEXT,
  color TEXT,
  size TEXT,
  price TEXT,
  position INTEGER NOT NULL,
  lastSeenAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_catalog_model ON catalog_entries(model);

CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS bons (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  emailId INTEGER,
  source TEXT NOT NULL,
  ocrText TEXT NOT NULL,
  rawResponse TEXT NOT NULL,
  itemsJson TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'processed',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(emailId) REFERENCES emails(id)
);

CREATE TABLE IF NOT EXISTS bon_lines (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  bonId INTEGER NOT NULL,
  lineNo INTEGER NOT NULL,
  page INTEGER,
  model TEXT,
  color TEXT,
  reference TEXT,
  size TEXT,
  quantity TEXT NOT NULL,
  price TEXT,
  needsReview INTEGER NOT NULL,
  origin TEXT NOT NULL,
  sourceJson TEXT,
  UNIQUE(bonId, lineNo),
  FOREIGN KEY(bonId) REFERENCES bons(id)
);

CREATE TABLE IF NOT EXISTS export_attempts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  bonId INTEGER NOT NULL,
  attempt INTEGER NOT NULL,
  error TEXT NOT NULL,
  agentApplied INTEGER NOT NULL,
  agentNotes TEXT,
  agentError TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(bonId) REFERENCES bons(id)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  bonId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(bonId) REFERENCES bons(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// UpsertCatalogEntries stores entries keeping their order as position, so a
// later load sees the catalog in the order it was imported.
func (d *DB) UpsertCatalogEntries(entries []internal.CatalogEntry) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO catalog_entries (reference, model, color, size, price, position, lastSeenAt)
VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(reference) DO UPDATE SET
  model=excluded.model,
  color=excluded.color,
  size=excluded.size,
  price=excluded.price,
  position=excluded.position,
  lastSeenAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.Exec(e.Reference, e.Model, e.Color, e.Size, e.Price, i); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListCatalogEntries() ([]internal.CatalogEntry, error) {
	rows, err := d.conn.Query(`
SELECT reference, model, color, size, price
FROM catalog_entries ORDER BY position ASC, reference ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.CatalogEntry
	for rows.Next() {
		var e internal.CatalogEntry
		if err := rows.Scan(&e.Reference, &e.Model, &e.Color, &e.Size, &e.Price); err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	return out, rows.Err()
}

func (d *DB) CountCatalogEntries() (int, error) {
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM catalog_entries`).Scan(&n)
	return n, err
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

const emailColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef`

func scanEmail(scan func(dest ...any) error) (internal.EmailRow, error) {
	var row internal.EmailRow
	err := scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef)
	return row, err
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE provider = ? AND messageId = ?`, provider, messageID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetEmailByID(id int) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`SELECT `+emailColumns+` FROM emails WHERE status = ? ORDER BY receivedAt ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		row, err := scanEmail(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

func (d *DB) InsertBon(traceID string, emailID *int, bon internal.Bon) (int, error) {
	itemsJSON, err := json.Marshal(bon.Items)
	if err != nil {
		return 0, err
	}
	result, err := d.conn.Exec(`
INSERT INTO bons (traceId, emailId, source, ocrText, rawResponse, itemsJson, status)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, traceID, emailID, string(bon.Source), bon.OCRText, bon.RawResponse, string(itemsJSON), internal.BonProcessed)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	return int(id), err
}

func (d *DB) GetBon(id int) (*internal.BonRow, error) {
	var row internal.BonRow
	err := d.conn.QueryRow(`
SELECT id, traceId, source, emailId, ocrText, rawResponse, itemsJson, status, createdAt
FROM bons WHERE id = ?
`, id).Scan(&row.ID, &row.TraceID, &row.Source, &row.EmailID, &row.OCRText, &row.RawResponse, &row.ItemsJSON, &row.Status, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListBonIDsByEmail(emailID int) ([]int, error) {
	rows, err := d.conn.Query(`SELECT id FROM bons WHERE emailId = ? ORDER BY id ASC`, emailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (d *DB) UpdateBonStatus(bonID int, status string) error {
	_, err := d.conn.Exec(`UPDATE bons SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, bonID)
	return err
}

// ClearEmailProcessing drops every bon derived from an email so it can be reprocessed.
func (d *DB) ClearEmailProcessing(emailID int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM bon_lines WHERE bonId IN (SELECT id FROM bons WHERE emailId = ?)`,
		`DELETE FROM export_attempts WHERE bonId IN (SELECT id FROM bons WHERE emailId = ?)`,
		`DELETE FROM runs WHERE bonId IN (SELECT id FROM bons WHERE emailId = ?)`,
		`DELETE FROM bons WHERE emailId = ?`,
	} {
		if _, err := tx.Exec(stmt, emailID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ReplaceBonLines swaps the stored lines of a bon for the given set.
func (d *DB) ReplaceBonLines(bonID int, items []internal.ResolvedItem) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM bon_lines WHERE bonId = ?`, bonID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO bon_lines (bonId, lineNo, page, model, color, reference, size, quantity, price, needsReview, origin, sourceJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, item := range items {
		var sourceJSON *string
		if item.Source != nil {
			blob, err := json.Marshal(item.Source)
			if err != nil {
				return err
			}
			s := string(blob)
			sourceJSON = &s
		}
		if _, err := stmt.Exec(
			bonID, i+1, item.Page, item.ModelNameRaw, item.ColorisRaw, item.ReferenceOCR, item.SizeOrCodeRaw,
			item.QuantityRaw, item.UnitPriceRaw, boolToInt(item.NeedsReview), string(item.Origin), sourceJSON,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListBonLines(bonID int) ([]internal.ResolvedItem, error) {
	rows, err := d.conn.Query(`
SELECT page, model, color, reference, size, quantity, price, needsReview, origin, sourceJson
FROM bon_lines WHERE bonId = ? ORDER BY lineNo ASC
`, bonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ResolvedItem
	for rows.Next() {
		var item internal.ResolvedItem
		var needsReview int
		var origin string
		var sourceJSON *string
		if err := rows.Scan(
			&item.Page, &item.ModelNameRaw, &item.ColorisRaw, &item.ReferenceOCR, &item.SizeOrCodeRaw,
			&item.QuantityRaw, &item.UnitPriceRaw, &needsReview, &origin, &sourceJSON,
		); err != nil {
			return nil, err
		}
		item.NeedsReview = needsReview != 0
		item.Origin = internal.ItemOrigin(origin)
		if sourceJSON != nil {
			var src internal.ExtractedItem
			if err := json.Unmarshal([]byte(*sourceJSON), &src); err == nil {
				item.Source = &src
			}
		}
		out = append(out, item)
	}

	return out, rows.Err()
}

func (d *DB) InsertExportAttempts(bonID int, history []internal.AttemptHistoryEntry) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, h := range history {
		if _, err := tx.Exec(`
INSERT INTO export_attempts (bonId, attempt, error, agentApplied, agentNotes, agentError)
VALUES (?, ?, ?, ?, ?, ?)
`, bonID, h.Attempt, h.Error, boolToInt(h.AgentApplied), h.AgentNotes, h.AgentError); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListExportAttempts(bonID int) ([]internal.AttemptHistoryEntry, error) {
	rows, err := d.conn.Query(`
SELECT attempt, error, agentApplied, agentNotes, agentError
FROM export_attempts WHERE bonId = ? ORDER BY id ASC
`, bonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.AttemptHistoryEntry
	for rows.Next() {
		var h internal.AttemptHistoryEntry
		var applied int
		if err := rows.Scan(&h.Attempt, &h.Error, &applied, &h.AgentNotes, &h.AgentError); err != nil {
			return nil, err
		}
		h.AgentApplied = applied != 0
		out = append(out, h)
	}
	return out, rows.Err()
}

func (d *DB) InsertRun(traceID string, bonID int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, bonId, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, bonID, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (d *DB) MustBon(id int) (internal.BonRow, error) {
	row, err := d.GetBon(id)
	if err != nil {
		return internal.BonRow{}, err
	}
	if row == nil {
		return internal.BonRow{}, fmt.Errorf("bon not found: id=%d", id)
	}
	return *row, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
