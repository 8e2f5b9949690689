/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Persists the commission ledger and the configuration documents
  (pricing rules, plans, agents, contracts, invoices). In production the
  same patterns apply to PostgreSQL with minor dialect differences.

INTERFACES IMPLEMENTED:
  generic.Store:         Commission rows
  generic.TxStore:       Engine operations run in one SQL transaction
  generic.DocumentStore: JSON configuration documents

LEDGER ENFORCEMENT:
  - Rows with a non-empty invoice_line are never updated or deleted
  - Cancellation inserts negated clones (cancels = reversed row id)
  - A row can be reversed once (unique index on cancels)

KEY TABLES:
  commissions: Ledger rows. Decimals are stored as TEXT to keep precision.
  documents:   (kind, id) -> JSON body

INDEXES:
  - idx_commissions_agent_option: Outstanding balance queries (hot path)
  - idx_commissions_origin:       Stale estimate lookup, invoice lines
  - idx_commissions_cancels:      One reversal per row

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, so that
  ":memory:" databases are shared by every call. With PostgreSQL,
  database-level concurrency control handles this instead.

USAGE:
  store, err := sqlite.New("./data/premium.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := commission.NewEngine(store, log)

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/premium-engine/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ generic.TxStore       = (*Store)(nil)
	_ generic.DocumentStore = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Commission ledger
	CREATE TABLE IF NOT EXISTS commissions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		agent_id TEXT NOT NULL,
		date TEXT NOT NULL,
		origin_kind TEXT NOT NULL,
		origin_id TEXT NOT NULL,
		invoice_line TEXT NOT NULL DEFAULT '',
		commissioned_contract TEXT NOT NULL DEFAULT '',
		commissioned_option TEXT NOT NULL DEFAULT '',
		product TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		is_prepayment BOOLEAN NOT NULL DEFAULT FALSE,
		redeemed_prepayment TEXT,
		base_amount TEXT NOT NULL DEFAULT '0',
		commission_rate TEXT,
		cancels TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_commissions_agent_option
		ON commissions(agent_id, commissioned_option);
	CREATE INDEX IF NOT EXISTS idx_commissions_origin
		ON commissions(origin_kind, origin_id);
	CREATE INDEX IF NOT EXISTS idx_commissions_date
		ON commissions(date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_commissions_cancels
		ON commissions(cancels) WHERE cancels != '';

	-- Configuration documents
	CREATE TABLE IF NOT EXISTS documents (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		body TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (kind, id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset removes every row and document. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"commissions", "documents"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errors.Wrapf(err, "failed to reset %s", table)
		}
	}
	return nil
}

// =============================================================================
// COMMISSION STORE (generic.Store interface)
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const commissionColumns = `id, agent_id, date, origin_kind, origin_id, invoice_line,
	commissioned_contract, commissioned_option, product, amount, is_prepayment,
	redeemed_prepayment, base_amount, commission_rate, cancels, created_at`

// Save inserts rows or replaces uninvoiced rows, in one transaction.
func (s *Store) Save(ctx context.Context, rows []generic.Commission) error {
	return s.WithTx(ctx, func(st generic.Store) error { return st.Save(ctx, rows) })
}

// Delete removes uninvoiced rows, in one transaction.
func (s *Store) Delete(ctx context.Context, ids []generic.CommissionID) error {
	return s.WithTx(ctx, func(st generic.Store) error { return st.Delete(ctx, ids) })
}

// MarkInvoiced recognises rows on an invoice line, in one transaction.
func (s *Store) MarkInvoiced(ctx context.Context, ids []generic.CommissionID, invoiceLine string) error {
	return s.WithTx(ctx, func(st generic.Store) error { return st.MarkInvoiced(ctx, ids, invoiceLine) })
}

func (s *Store) Find(ctx context.Context, filter generic.Filter) ([]generic.Commission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findCommissions(ctx, s.db, filter)
}

func (s *Store) Get(ctx context.Context, id generic.CommissionID) (generic.Commission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCommission(ctx, s.db, id)
}

func saveCommissions(ctx context.Context, db execer, rows []generic.Commission) error {
	for _, c := range rows {
		if c.ID == "" {
			return errors.New("commission row without id")
		}
		existing, err := getCommission(ctx, db, c.ID)
		if err == nil && existing.IsInvoiced() {
			return &generic.InvoicedCommissionError{CommissionID: c.ID, InvoiceLine: existing.InvoiceLine}
		}
		if err != nil && !generic.IsNotFound(err) {
			return err
		}
	}

	query := `
		INSERT INTO commissions (` + commissionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent_id = excluded.agent_id,
			date = excluded.date,
			origin_kind = excluded.origin_kind,
			origin_id = excluded.origin_id,
			invoice_line = excluded.invoice_line,
			commissioned_contract = excluded.commissioned_contract,
			commissioned_option = excluded.commissioned_option,
			product = excluded.product,
			amount = excluded.amount,
			is_prepayment = excluded.is_prepayment,
			redeemed_prepayment = excluded.redeemed_prepayment,
			base_amount = excluded.base_amount,
			commission_rate = excluded.commission_rate,
			cancels = excluded.cancels
	`
	now := time.Now().UTC()
	for _, c := range rows {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		_, err := db.ExecContext(ctx, query,
			c.ID,
			c.Agent,
			c.Date.String(),
			c.Origin.Kind,
			c.Origin.ID,
			c.InvoiceLine,
			c.CommissionedContract,
			c.CommissionedOption,
			c.Product,
			c.Amount.String(),
			c.IsPrepayment,
			nullDecimal(c.RedeemedPrepayment),
			c.BaseAmount.String(),
			nullDecimal(c.CommissionRate),
			string(c.Cancels),
			createdAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return errors.Wrapf(generic.ErrDuplicateID, "commission %s reverses an already reversed row", c.ID)
			}
			return errors.Wrap(err, "failed to save commission")
		}
	}
	return nil
}

func deleteCommissions(ctx context.Context, db execer, ids []generic.CommissionID) error {
	for _, id := range ids {
		c, err := getCommission(ctx, db, id)
		if err != nil {
			return err
		}
		if c.IsInvoiced() {
			return &generic.InvoicedCommissionError{CommissionID: id, InvoiceLine: c.InvoiceLine}
		}
	}
	for _, id := range ids {
		if _, err := db.ExecContext(ctx, "DELETE FROM commissions WHERE id = ? AND invoice_line = ''", id); err != nil {
			return errors.Wrap(err, "failed to delete commission")
		}
	}
	return nil
}

func markInvoiced(ctx context.Context, db execer, ids []generic.CommissionID, invoiceLine string) error {
	for _, id := range ids {
		c, err := getCommission(ctx, db, id)
		if err != nil {
			return err
		}
		if c.IsInvoiced() {
			return &generic.InvoicedCommissionError{CommissionID: id, InvoiceLine: c.InvoiceLine}
		}
	}
	for _, id := range ids {
		if _, err := db.ExecContext(ctx, "UPDATE commissions SET invoice_line = ? WHERE id = ?", invoiceLine, id); err != nil {
			return errors.Wrap(err, "failed to mark commission invoiced")
		}
	}
	return nil
}

func getCommission(ctx context.Context, db execer, id generic.CommissionID) (generic.Commission, error) {
	rows, err := queryCommissions(ctx, db, "SELECT "+commissionColumns+" FROM commissions WHERE id = ?", id)
	if err != nil {
		return generic.Commission{}, err
	}
	if len(rows) == 0 {
		return generic.Commission{}, errors.Wrapf(generic.ErrNotFound, "commission %s", id)
	}
	return rows[0], nil
}

func findCommissions(ctx context.Context, db execer, filter generic.Filter) ([]generic.Commission, error) {
	where, args := filterClause(filter)
	query := "SELECT " + commissionColumns + " FROM commissions" + where + " ORDER BY date, seq"
	return queryCommissions(ctx, db, query, args...)
}

// filterClause translates a Filter into a WHERE clause. Zero fields
// don't filter, like Filter.Matches.
func filterClause(f generic.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if len(f.Agents) > 0 {
		conds = append(conds, "agent_id IN ("+placeholders(len(f.Agents))+")")
		for _, a := range f.Agents {
			args = append(args, string(a))
		}
	}
	if len(f.Options) > 0 {
		conds = append(conds, "commissioned_option IN ("+placeholders(len(f.Options))+")")
		for _, o := range f.Options {
			args = append(args, string(o))
		}
	}
	if f.Origin != nil {
		conds = append(conds, "origin_kind = ? AND origin_id = ?")
		args = append(args, string(f.Origin.Kind), f.Origin.ID)
	}
	if f.InvoiceLine != nil {
		conds = append(conds, "invoice_line = ?")
		args = append(args, *f.InvoiceLine)
	}
	if f.IsPrepayment != nil {
		conds = append(conds, "is_prepayment = ?")
		args = append(args, *f.IsPrepayment)
	}
	if f.Until != nil {
		conds = append(conds, "date <= ?")
		args = append(args, f.Until.String())
	}
	if f.HasRedeemed {
		conds = append(conds, "redeemed_prepayment IS NOT NULL")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func queryCommissions(ctx context.Context, db execer, query string, args ...any) ([]generic.Commission, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query commissions")
	}
	defer rows.Close()

	var commissions []generic.Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		commissions = append(commissions, c)
	}

	return commissions, rows.Err()
}

func scanCommission(rows *sql.Rows) (generic.Commission, error) {
	var (
		c          generic.Commission
		date       string
		originKind string
		amount     string
		redeemed   sql.NullString
		baseAmount string
		rate       sql.NullString
		cancels    string
		createdAt  string
	)

	err := rows.Scan(
		&c.ID, &c.Agent, &date, &originKind, &c.Origin.ID, &c.InvoiceLine,
		&c.CommissionedContract, &c.CommissionedOption, &c.Product, &amount, &c.IsPrepayment,
		&redeemed, &baseAmount, &rate, &cancels, &createdAt,
	)
	if err != nil {
		return c, errors.Wrap(err, "failed to scan commission")
	}

	if c.Date, err = generic.ParseDate(date); err != nil {
		return c, errors.Wrapf(err, "commission %s date", c.ID)
	}
	c.Origin.Kind = generic.RefKind(originKind)
	if c.Amount, err = decimal.NewFromString(amount); err != nil {
		return c, errors.Wrapf(err, "commission %s amount", c.ID)
	}
	if c.BaseAmount, err = decimal.NewFromString(baseAmount); err != nil {
		return c, errors.Wrapf(err, "commission %s base amount", c.ID)
	}
	if c.RedeemedPrepayment, err = parseNullDecimal(redeemed); err != nil {
		return c, errors.Wrapf(err, "commission %s redeemed prepayment", c.ID)
	}
	if c.CommissionRate, err = parseNullDecimal(rate); err != nil {
		return c, errors.Wrapf(err, "commission %s rate", c.ID)
	}
	c.Cancels = generic.CommissionID(cancels)
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	return c, nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore reads its own writes: every call goes through the SQL tx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Save(ctx context.Context, rows []generic.Commission) error {
	return saveCommissions(ctx, ts.tx, rows)
}

func (ts *txStore) Delete(ctx context.Context, ids []generic.CommissionID) error {
	return deleteCommissions(ctx, ts.tx, ids)
}

func (ts *txStore) Find(ctx context.Context, filter generic.Filter) ([]generic.Commission, error) {
	return findCommissions(ctx, ts.tx, filter)
}

func (ts *txStore) Get(ctx context.Context, id generic.CommissionID) (generic.Commission, error) {
	return getCommission(ctx, ts.tx, id)
}

func (ts *txStore) MarkInvoiced(ctx context.Context, ids []generic.CommissionID, invoiceLine string) error {
	return markInvoiced(ctx, ts.tx, ids, invoiceLine)
}

// =============================================================================
// DOCUMENT STORE (generic.DocumentStore interface)
// =============================================================================

func (s *Store) PutDocument(ctx context.Context, kind, id string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (kind, id, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			body = excluded.body,
			updated_at = excluded.updated_at
	`, kind, id, string(body), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return errors.Wrapf(err, "failed to save %s %s", kind, id)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, kind, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM documents WHERE kind = ? AND id = ?", kind, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(generic.ErrNotFound, "%s %s", kind, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get %s %s", kind, id)
	}
	return []byte(body), nil
}

func (s *Store) ListDocuments(ctx context.Context, kind string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT body FROM documents WHERE kind = ? ORDER BY id", kind)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s documents", kind)
	}
	defer rows.Close()

	var bodies [][]byte
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, errors.Wrap(err, "failed to scan document")
		}
		bodies = append(bodies, []byte(body))
	}
	return bodies, rows.Err()
}

// Helper functions

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
