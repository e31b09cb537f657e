package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/JonMunkholm/fiscal/internal/fiscal"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

const sqliteNow = `strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`

// sqlDB is satisfied by both *sql.DB and *sql.Tx.
type sqlDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore is a Store backed by modernc.org/sqlite. It holds a single
// connection so that in-memory databases survive across calls and writers
// never contend for the file lock.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens path (or ":memory:") with foreign keys enabled.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle for tests and seeding.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Queries() Queries { return &sqliteQueries{db: s.db} }

func (s *SQLiteStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if already committed

	if err := fn(&sqliteQueries{db: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Dialect() string { return "sqlite" }

func (s *SQLiteStore) Close() { s.db.Close() }

type sqliteQueries struct {
	db   sqlDB
	inTx bool
}

func (q *sqliteQueries) savepoint(ctx context.Context, name string, fn func() error) error {
	if !q.inTx {
		return fn()
	}
	if _, err := q.db.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := q.db.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("failed to rollback savepoint: %w", rbErr)
		}
		return err
	}
	if _, err := q.db.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

func (q *sqliteQueries) FindSupplier(ctx context.Context, companyID int64, taxID string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx,
		`SELECT id FROM fornecedores WHERE empresa_id = ? AND cnpj_cpf = ?`,
		companyID, taxID,
	).Scan(&id)
	if err != nil {
		return 0, sqliteError(err)
	}
	return id, nil
}

func (q *sqliteQueries) CreateSupplier(ctx context.Context, s NewSupplier) (int64, error) {
	const query = `INSERT INTO fornecedores (empresa_id, cnpj_cpf, razao_social, tipo_pessoa)
		VALUES (?, ?, ?, ?) RETURNING id`

	var id int64
	err := q.savepoint(ctx, "create_supplier", func() error {
		return q.db.QueryRowContext(ctx, query, s.CompanyID, s.TaxID, s.Name, string(s.PersonType)).Scan(&id)
	})
	if err != nil {
		return 0, sqliteError(err)
	}
	return id, nil
}

func (q *sqliteQueries) UpsertDocument(ctx context.Context, d DocumentUpsert) (UpsertResult, error) {
	query := `INSERT INTO documentos_fiscais (
			empresa_id, fornecedor_id, tipo_documento, numero_documento, serie,
			chave_acesso, data_emissao, valor_total, valor_impostos,
			status_processamento, xml_content, usuario_criacao_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'PENDENTE', ?, ?)
		ON CONFLICT (chave_acesso) DO UPDATE SET
			valor_total = excluded.valor_total,
			status_processamento = 'PENDENTE',
			xml_content = excluded.xml_content,
			updated_at = ` + sqliteNow + `
		RETURNING id`

	doc := d.Doc

	// SQLite has no xmax; the connection is exclusive so a prior lookup is
	// race free.
	prior, err := q.DocumentIDByAccessKey(ctx, doc.AccessKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return UpsertResult{}, err
	}

	var id int64
	err = q.db.QueryRowContext(ctx, query,
		d.CompanyID,
		d.SupplierID,
		string(doc.Kind),
		doc.Number,
		nullString(doc.Series),
		nullString(doc.AccessKey),
		nullString(doc.IssueDate),
		amountText(doc.GrossAmount),
		amountText(doc.TaxAmount),
		doc.RawXML,
		nullInt64(d.CreatedBy),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return UpsertResult{}, nil
	}
	if err != nil {
		return UpsertResult{}, sqliteError(err)
	}
	return UpsertResult{ID: id, Inserted: prior == 0}, nil
}

func (q *sqliteQueries) DocumentIDByAccessKey(ctx context.Context, accessKey string) (int64, error) {
	if accessKey == "" {
		return 0, ErrNotFound
	}
	var id int64
	err := q.db.QueryRowContext(ctx, `SELECT id FROM documentos_fiscais WHERE chave_acesso = ?`, accessKey).Scan(&id)
	if err != nil {
		return 0, sqliteError(err)
	}
	return id, nil
}

func (q *sqliteQueries) DocumentStatus(ctx context.Context, id int64) (fiscal.Status, error) {
	var status string
	err := q.db.QueryRowContext(ctx, `SELECT status_processamento FROM documentos_fiscais WHERE id = ?`, id).Scan(&status)
	if err != nil {
		return "", sqliteError(err)
	}
	return fiscal.Status(status), nil
}

func (q *sqliteQueries) CompareAndSetStatus(ctx context.Context, id int64, from, to fiscal.Status) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE documentos_fiscais SET status_processamento = ?, updated_at = `+sqliteNow+`
		WHERE id = ? AND status_processamento = ?`,
		string(to), id, string(from),
	)
	if err != nil {
		return false, sqliteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const sqliteDocumentColumns = `d.id, d.empresa_id, d.fornecedor_id, COALESCE(f.razao_social, ''),
	d.tipo_documento, d.numero_documento, COALESCE(d.serie, ''), COALESCE(d.chave_acesso, ''),
	COALESCE(d.data_emissao, ''), d.valor_total, d.valor_impostos,
	d.status_processamento, COALESCE(d.usuario_criacao_id, 0), d.created_at, d.updated_at
	FROM documentos_fiscais d
	LEFT JOIN fornecedores f ON f.id = d.fornecedor_id`

func (q *sqliteQueries) GetDocument(ctx context.Context, id int64) (*fiscal.Document, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+sqliteDocumentColumns+` WHERE d.id = ?`, id)
	doc, err := scanSQLiteDocument(row)
	if err != nil {
		return nil, sqliteError(err)
	}
	return doc, nil
}

func (q *sqliteQueries) ListDocuments(ctx context.Context, f DocumentFilter) ([]fiscal.Document, error) {
	wb := NewSQLiteWhereBuilder()
	wb.AddSearch(f.Search, "d.numero_documento", "f.razao_social", "d.tipo_documento")
	wb.Add("d.status_processamento", f.Status)
	wb.Add("d.tipo_documento", f.Kind)
	wb.AddInt("d.fornecedor_id", f.SupplierID)
	wb.AddRange("d.data_emissao", f.From, f.To)

	whereClause, args := wb.Build()
	query := `SELECT ` + sqliteDocumentColumns + whereClause +
		` ORDER BY d.data_emissao IS NULL, d.data_emissao DESC, d.id DESC LIMIT ?`
	args = append(args, f.limit())

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteError(err)
	}
	defer rows.Close()

	docs := make([]fiscal.Document, 0)
	for rows.Next() {
		doc, err := scanSQLiteDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (q *sqliteQueries) UserNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT id, nome FROM usuarios WHERE id IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return nil, sqliteError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

func (q *sqliteQueries) UserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := q.db.QueryRowContext(ctx,
		`SELECT id, nome, email, senha_hash, ativo FROM usuarios WHERE email = ?`, email,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Active)
	if err != nil {
		return nil, sqliteError(err)
	}
	return &u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDocument(row rowScanner) (*fiscal.Document, error) {
	var (
		doc       fiscal.Document
		kind      string
		status    string
		grossText string
		taxText   string
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&doc.ID, &doc.CompanyID, &doc.SupplierID, &doc.SupplierName,
		&kind, &doc.Number, &doc.Series, &doc.AccessKey,
		&doc.IssueDate, &grossText, &taxText,
		&status, &doc.CreatedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Kind = fiscal.DocumentKind(kind)
	doc.Status = fiscal.Status(status)
	if doc.GrossAmount, err = decimal.NewFromString(grossText); err != nil {
		return nil, fmt.Errorf("parse valor_total: %w", err)
	}
	if doc.TaxAmount, err = decimal.NewFromString(taxText); err != nil {
		return nil, fmt.Errorf("parse valor_impostos: %w", err)
	}
	if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if doc.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &doc, nil
}

func sqliteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %s", ErrUniqueViolation, sqErr.Error())
		}
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(i int64) sql.NullInt64 {
	return sql.NullInt64{Int64: i, Valid: i != 0}
}
