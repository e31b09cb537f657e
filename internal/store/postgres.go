package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/fiscal/internal/fiscal"
)

//go:embed schema_postgres.sql
var postgresSchema string

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// DBTX is the interface for database operations shared by the pool and a
// transaction.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresStore is a Store backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, opts Options) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Queries() Queries { return &pgQueries{db: s.pool} }

func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if err := fn(&pgQueries{db: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Dialect() string { return "postgres" }

func (s *PostgresStore) Close() { s.pool.Close() }

type pgQueries struct {
	db   DBTX
	inTx bool
}

// savepoint isolates fn so that a failed statement does not abort the
// enclosing transaction. PostgreSQL aborts the whole transaction on any
// error otherwise.
func (q *pgQueries) savepoint(ctx context.Context, name string, fn func() error) error {
	if !q.inTx {
		return fn()
	}
	if _, err := q.db.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := q.db.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("failed to rollback savepoint: %w", rbErr)
		}
		return err
	}
	if _, err := q.db.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

func (q *pgQueries) FindSupplier(ctx context.Context, companyID int64, taxID string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`SELECT id FROM fornecedores WHERE empresa_id = $1 AND cnpj_cpf = $2`,
		companyID, taxID,
	).Scan(&id)
	if err != nil {
		return 0, pgError(err)
	}
	return id, nil
}

func (q *pgQueries) CreateSupplier(ctx context.Context, s NewSupplier) (int64, error) {
	const query = `INSERT INTO fornecedores (empresa_id, cnpj_cpf, razao_social, tipo_pessoa)
		VALUES ($1, $2, $3, $4) RETURNING id`

	var id int64
	err := q.savepoint(ctx, "create_supplier", func() error {
		return q.db.QueryRow(ctx, query, s.CompanyID, s.TaxID, s.Name, string(s.PersonType)).Scan(&id)
	})
	if err != nil {
		return 0, pgError(err)
	}
	return id, nil
}

func (q *pgQueries) UpsertDocument(ctx context.Context, d DocumentUpsert) (UpsertResult, error) {
	// xmax is zero only on a freshly inserted tuple.
	const query = `INSERT INTO documentos_fiscais (
			empresa_id, fornecedor_id, tipo_documento, numero_documento, serie,
			chave_acesso, data_emissao, valor_total, valor_impostos,
			status_processamento, xml_content, usuario_criacao_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'PENDENTE', $10, $11)
		ON CONFLICT (chave_acesso) DO UPDATE SET
			valor_total = EXCLUDED.valor_total,
			status_processamento = 'PENDENTE',
			xml_content = EXCLUDED.xml_content,
			updated_at = now()
		RETURNING id, (xmax = 0)`

	doc := d.Doc
	var res UpsertResult
	err := q.db.QueryRow(ctx, query,
		d.CompanyID,
		d.SupplierID,
		string(doc.Kind),
		doc.Number,
		pgText(doc.Series),
		pgText(doc.AccessKey),
		pgDate(doc.IssueDate),
		pgNumeric(doc.GrossAmount),
		pgNumeric(doc.TaxAmount),
		doc.RawXML,
		pgInt8(d.CreatedBy),
	).Scan(&res.ID, &res.Inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		return UpsertResult{}, nil
	}
	if err != nil {
		return UpsertResult{}, pgError(err)
	}
	return res, nil
}

func (q *pgQueries) DocumentIDByAccessKey(ctx context.Context, accessKey string) (int64, error) {
	if accessKey == "" {
		return 0, ErrNotFound
	}
	var id int64
	err := q.db.QueryRow(ctx, `SELECT id FROM documentos_fiscais WHERE chave_acesso = $1`, accessKey).Scan(&id)
	if err != nil {
		return 0, pgError(err)
	}
	return id, nil
}

func (q *pgQueries) DocumentStatus(ctx context.Context, id int64) (fiscal.Status, error) {
	var status string
	err := q.db.QueryRow(ctx, `SELECT status_processamento FROM documentos_fiscais WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return "", pgError(err)
	}
	return fiscal.Status(status), nil
}

func (q *pgQueries) CompareAndSetStatus(ctx context.Context, id int64, from, to fiscal.Status) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE documentos_fiscais SET status_processamento = $1, updated_at = now()
		WHERE id = $2 AND status_processamento = $3`,
		string(to), id, string(from),
	)
	if err != nil {
		return false, pgError(err)
	}
	return tag.RowsAffected() == 1, nil
}

const pgDocumentColumns = `d.id, d.empresa_id, d.fornecedor_id, COALESCE(f.razao_social, ''),
	d.tipo_documento, d.numero_documento, COALESCE(d.serie, ''), COALESCE(d.chave_acesso, ''),
	COALESCE(to_char(d.data_emissao, 'YYYY-MM-DD'), ''), d.valor_total::text, d.valor_impostos::text,
	d.status_processamento, COALESCE(d.usuario_criacao_id, 0), d.created_at, d.updated_at
	FROM documentos_fiscais d
	LEFT JOIN fornecedores f ON f.id = d.fornecedor_id`

func (q *pgQueries) GetDocument(ctx context.Context, id int64) (*fiscal.Document, error) {
	row := q.db.QueryRow(ctx, `SELECT `+pgDocumentColumns+` WHERE d.id = $1`, id)
	doc, err := scanPgDocument(row)
	if err != nil {
		return nil, pgError(err)
	}
	return doc, nil
}

func (q *pgQueries) ListDocuments(ctx context.Context, f DocumentFilter) ([]fiscal.Document, error) {
	wb := NewWhereBuilder()
	wb.AddSearch(f.Search, "d.numero_documento", "f.razao_social", "d.tipo_documento")
	wb.Add("d.status_processamento", f.Status)
	wb.Add("d.tipo_documento", f.Kind)
	wb.AddInt("d.fornecedor_id", f.SupplierID)
	wb.AddRange("to_char(d.data_emissao, 'YYYY-MM-DD')", f.From, f.To)

	whereClause, args := wb.Build()
	query := `SELECT ` + pgDocumentColumns + whereClause +
		` ORDER BY d.data_emissao DESC NULLS LAST, d.id DESC LIMIT ` + wb.Placeholder(0)
	args = append(args, f.limit())

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, pgError(err)
	}
	defer rows.Close()

	docs := make([]fiscal.Document, 0)
	for rows.Next() {
		doc, err := scanPgDocument(rows)
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

func (q *pgQueries) UserNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	rows, err := q.db.Query(ctx, `SELECT id, nome FROM usuarios WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, pgError(err)
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

func (q *pgQueries) UserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := q.db.QueryRow(ctx,
		`SELECT id, nome, email, senha_hash, ativo FROM usuarios WHERE email = $1`, email,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Active)
	if err != nil {
		return nil, pgError(err)
	}
	return &u, nil
}

func scanPgDocument(row pgx.Row) (*fiscal.Document, error) {
	var (
		doc        fiscal.Document
		kind       string
		status     string
		grossText  string
		taxText    string
		createdAt  time.Time
		updatedAt  time.Time
		supplierNm string
	)
	err := row.Scan(
		&doc.ID, &doc.CompanyID, &doc.SupplierID, &supplierNm,
		&kind, &doc.Number, &doc.Series, &doc.AccessKey,
		&doc.IssueDate, &grossText, &taxText,
		&status, &doc.CreatedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.SupplierName = supplierNm
	doc.Kind = fiscal.DocumentKind(kind)
	doc.Status = fiscal.Status(status)
	doc.CreatedAt = createdAt
	doc.UpdatedAt = updatedAt
	if doc.GrossAmount, err = decimal.NewFromString(grossText); err != nil {
		return nil, fmt.Errorf("parse valor_total: %w", err)
	}
	if doc.TaxAmount, err = decimal.NewFromString(taxText); err != nil {
		return nil, fmt.Errorf("parse valor_impostos: %w", err)
	}
	return &doc, nil
}

// pgError normalizes driver errors onto the package sentinels.
func pgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.ConstraintName)
	}
	return err
}

// pgText returns an invalid (NULL) value for empty strings.
func pgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// pgDate expects YYYY-MM-DD; anything else is stored as NULL.
func pgDate(s string) pgtype.Date {
	if s == "" {
		return pgtype.Date{Valid: false}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}

func pgNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		return pgtype.Numeric{Valid: false}
	}
	return n
}

// pgInt8 returns NULL for zero ids.
func pgInt8(i int64) pgtype.Int8 {
	if i == 0 {
		return pgtype.Int8{Valid: false}
	}
	return pgtype.Int8{Int64: i, Valid: true}
}
