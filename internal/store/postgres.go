package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/crashledger/internal/domain"
	"github.com/punchamoorthee/crashledger/internal/identifier"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresStore serializes writers per aggregate with SELECT ... FOR UPDATE
// on the aggregate's row inside a transaction.
type PostgresStore struct {
	db *pgxpool.Pool
}

var (
	_ Store                   = (*PostgresStore)(nil)
	_ identifier.SuffixSource = (*PostgresStore)(nil)
)

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// NextSuffix draws the next accident number from the database sequence.
func (s *PostgresStore) NextSuffix(ctx context.Context) (string, error) {
	var n int64
	if err := s.db.QueryRow(ctx, "SELECT nextval('accident_identifier_seq')").Scan(&n); err != nil {
		return "", fmt.Errorf("accident sequence: %w", err)
	}
	return identifier.FormatSequence(n)
}

// AdvanceSequence makes sure the next drawn accident number is above n, for
// records created under a fixed sequential identifier. It never moves the
// sequence backwards.
func (s *PostgresStore) AdvanceSequence(ctx context.Context, n int64) error {
	if n < 1 {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`SELECT setval('accident_identifier_seq',
			GREATEST($1::bigint, (SELECT CASE WHEN is_called THEN last_value ELSE 0 END FROM accident_identifier_seq)),
			true)`,
		n)
	if err != nil {
		return fmt.Errorf("advance accident sequence: %w", err)
	}
	return nil
}

// withTx runs fn in a read-committed transaction; row locks provide the
// per-aggregate serialization.
func (s *PostgresStore) withTx(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

var snapshotTx = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ---------------------------------------------------------------------------
// Accident records
// ---------------------------------------------------------------------------

const accidentColumns = `identifier, occurred_at, location, weather, road_surface, light, narrative,
	author_id, report_status, submitted_at, reviewer_id, review_notes, rejection_reason,
	reviewed_at, document, document_digest, version, created_at, updated_at`

const vehicleColumns = `registration, make, model, year, driver_id, driver_name, insurer_id,
	policy_number, fault_percent, damage_description, attached_by, attached_at,
	assessor_id, severity, roadworthy, estimated_repair_cost, assessed_at`

func (s *PostgresStore) CreateRecord(ctx context.Context, rec *domain.AccidentRecord) error {
	return s.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO accidents ("+accidentColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)",
			recordArgs(rec)...,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrAlreadyExists
			}
			return fmt.Errorf("accident insert failed: %w", err)
		}
		return saveRecordChildren(ctx, tx, rec)
	})
}

func (s *PostgresStore) GetRecord(ctx context.Context, id identifier.ID) (*domain.AccidentRecord, error) {
	var rec *domain.AccidentRecord
	err := s.withTx(ctx, snapshotTx, func(tx pgx.Tx) error {
		var err error
		rec, err = loadRecord(ctx, tx, id, false)
		return err
	})
	return rec, err
}

func (s *PostgresStore) UpdateRecord(ctx context.Context, id identifier.ID, fn RecordMutation) (*domain.AccidentRecord, error) {
	var out *domain.AccidentRecord
	err := s.withTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		rec, err := loadRecord(ctx, tx, id, true)
		if err != nil {
			return err
		}
		before := rec.Clone()
		changed, err := fn(rec)
		if err != nil {
			return err
		}
		if !changed {
			out = before
			return nil
		}
		if _, err := tx.Exec(ctx,
			`UPDATE accidents SET occurred_at = $2, location = $3, weather = $4, road_surface = $5,
				light = $6, narrative = $7, author_id = $8, report_status = $9, submitted_at = $10,
				reviewer_id = $11, review_notes = $12, rejection_reason = $13, reviewed_at = $14,
				document = $15, document_digest = $16, version = $17, created_at = $18, updated_at = $19
			 WHERE identifier = $1`,
			recordArgs(rec)...,
		); err != nil {
			return fmt.Errorf("accident update failed: %w", err)
		}
		if err := saveRecordChildren(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func recordArgs(rec *domain.AccidentRecord) []any {
	r := rec.Report
	return []any{
		rec.ID.String(), rec.OccurredAt, rec.Location, rec.Conditions.Weather, rec.Conditions.Road,
		rec.Conditions.Light, rec.Narrative, rec.AuthorID, string(r.Status), r.SubmittedAt,
		r.ReviewerID, r.ReviewNotes, r.RejectionReason, r.ReviewedAt, r.Document, r.DocumentDigest,
		rec.Version, rec.CreatedAt, rec.UpdatedAt,
	}
}

func saveRecordChildren(ctx context.Context, tx pgx.Tx, rec *domain.AccidentRecord) error {
	batch := &pgx.Batch{}
	for i, v := range rec.Vehicles {
		var (
			assessor, severity *string
			roadworthy         *bool
			cost               *int64
			assessedAt         *time.Time
		)
		if a := v.Assessment; a != nil {
			sev := string(a.Severity)
			c := int64(a.EstimatedRepairCost)
			assessor, severity, roadworthy, cost, assessedAt = &a.AssessorID, &sev, &a.Roadworthy, &c, &a.AssessedAt
		}
		batch.Queue(
			`INSERT INTO vehicles (accident_identifier, position, `+vehicleColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
			 ON CONFLICT (accident_identifier, registration) DO UPDATE SET
				make = EXCLUDED.make, model = EXCLUDED.model, year = EXCLUDED.year,
				driver_id = EXCLUDED.driver_id, driver_name = EXCLUDED.driver_name,
				insurer_id = EXCLUDED.insurer_id, policy_number = EXCLUDED.policy_number,
				fault_percent = EXCLUDED.fault_percent, damage_description = EXCLUDED.damage_description,
				attached_by = EXCLUDED.attached_by, attached_at = EXCLUDED.attached_at,
				assessor_id = EXCLUDED.assessor_id, severity = EXCLUDED.severity,
				roadworthy = EXCLUDED.roadworthy, estimated_repair_cost = EXCLUDED.estimated_repair_cost,
				assessed_at = EXCLUDED.assessed_at`,
			rec.ID.String(), i, v.Registration, v.Make, v.Model, v.Year, v.DriverID, v.DriverName,
			v.InsurerID, v.PolicyNumber, v.FaultPercent, v.DamageDescription, v.AttachedBy, v.AttachedAt,
			assessor, severity, roadworthy, cost, assessedAt,
		)
	}
	for i, w := range rec.Witnesses {
		batch.Queue(
			`INSERT INTO witness_statements (accident_identifier, position, name, contact, statement, recorded_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (accident_identifier, position) DO NOTHING`,
			rec.ID.String(), i, w.Name, w.Contact, w.Statement, w.RecordedAt,
		)
	}
	return execBatch(ctx, tx, batch)
}

func execBatch(ctx context.Context, q querier, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := q.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch statement %d failed: %w", i, err)
		}
	}
	return br.Close()
}

func loadRecord(ctx context.Context, q querier, id identifier.ID, forUpdate bool) (*domain.AccidentRecord, error) {
	query := "SELECT " + accidentColumns + " FROM accidents WHERE identifier = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		rec    domain.AccidentRecord
		rawID  string
		status string
	)
	err := q.QueryRow(ctx, query, id.String()).Scan(
		&rawID, &rec.OccurredAt, &rec.Location, &rec.Conditions.Weather, &rec.Conditions.Road,
		&rec.Conditions.Light, &rec.Narrative, &rec.AuthorID, &status, &rec.Report.SubmittedAt,
		&rec.Report.ReviewerID, &rec.Report.ReviewNotes, &rec.Report.RejectionReason,
		&rec.Report.ReviewedAt, &rec.Report.Document, &rec.Report.DocumentDigest,
		&rec.Version, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("accident query failed: %w", err)
	}
	rec.ID = identifier.ID(rawID)
	rec.Report.Status = domain.ReportStatus(status)

	if rec.Vehicles, err = loadVehicles(ctx, q, id); err != nil {
		return nil, err
	}
	if rec.Witnesses, err = loadWitnesses(ctx, q, id); err != nil {
		return nil, err
	}
	return &rec, nil
}

func loadVehicles(ctx context.Context, q querier, id identifier.ID) ([]domain.VehicleInvolvement, error) {
	rows, err := q.Query(ctx,
		"SELECT "+vehicleColumns+" FROM vehicles WHERE accident_identifier = $1 ORDER BY position",
		id.String())
	if err != nil {
		return nil, fmt.Errorf("vehicle query failed: %w", err)
	}
	defer rows.Close()

	vehicles := []domain.VehicleInvolvement{}
	for rows.Next() {
		var (
			v                  domain.VehicleInvolvement
			assessor, severity *string
			roadworthy         *bool
			cost               *int64
			assessedAt         *time.Time
		)
		if err := rows.Scan(
			&v.Registration, &v.Make, &v.Model, &v.Year, &v.DriverID, &v.DriverName, &v.InsurerID,
			&v.PolicyNumber, &v.FaultPercent, &v.DamageDescription, &v.AttachedBy, &v.AttachedAt,
			&assessor, &severity, &roadworthy, &cost, &assessedAt,
		); err != nil {
			return nil, fmt.Errorf("vehicle scan failed: %w", err)
		}
		if assessor != nil {
			v.Assessment = &domain.DamageAssessment{
				AssessorID:          *assessor,
				Severity:            domain.Severity(deref(severity)),
				Roadworthy:          roadworthy != nil && *roadworthy,
				EstimatedRepairCost: domain.Amount(deref(cost)),
				AssessedAt:          deref(assessedAt),
			}
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

func loadWitnesses(ctx context.Context, q querier, id identifier.ID) ([]domain.WitnessStatement, error) {
	rows, err := q.Query(ctx,
		"SELECT name, contact, statement, recorded_at FROM witness_statements WHERE accident_identifier = $1 ORDER BY position",
		id.String())
	if err != nil {
		return nil, fmt.Errorf("witness query failed: %w", err)
	}
	defer rows.Close()

	witnesses := []domain.WitnessStatement{}
	for rows.Next() {
		var w domain.WitnessStatement
		if err := rows.Scan(&w.Name, &w.Contact, &w.Statement, &w.RecordedAt); err != nil {
			return nil, fmt.Errorf("witness scan failed: %w", err)
		}
		witnesses = append(witnesses, w)
	}
	return witnesses, rows.Err()
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// ---------------------------------------------------------------------------
// Claims
// ---------------------------------------------------------------------------

const claimColumns = `id, accident_identifier, vehicle_ref, insurer_id, policy_number, driver_id,
	fault_percent, claimed_amount, settled_amount, status, adjuster_id, submitted_at,
	assigned_at, decided_at, paid_at, version, updated_at`

func claimArgs(c *domain.Claim) []any {
	return []any{
		c.ID, c.AccidentID.String(), c.VehicleRef, c.InsurerID, c.PolicyNumber, c.DriverID,
		c.FaultPercent, int64(c.ClaimedAmount), int64(c.SettledAmount), string(c.Status), c.AdjusterID,
		c.SubmittedAt, c.AssignedAt, c.DecidedAt, c.PaidAt, c.Version, c.UpdatedAt,
	}
}

func (s *PostgresStore) CreateClaim(ctx context.Context, c *domain.Claim) error {
	return s.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO claims ("+claimColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)",
			claimArgs(c)...,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrAlreadyExists
			}
			return fmt.Errorf("claim insert failed: %w", err)
		}
		return saveMessages(ctx, tx, c)
	})
}

func (s *PostgresStore) GetClaim(ctx context.Context, id string) (*domain.Claim, error) {
	var c *domain.Claim
	err := s.withTx(ctx, snapshotTx, func(tx pgx.Tx) error {
		var err error
		c, err = loadClaim(ctx, tx, id, false)
		return err
	})
	return c, err
}

func (s *PostgresStore) UpdateClaim(ctx context.Context, id string, fn ClaimMutation) (*domain.Claim, error) {
	var out *domain.Claim
	err := s.withTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		c, err := loadClaim(ctx, tx, id, true)
		if err != nil {
			return err
		}
		before := c.Clone()
		changed, err := fn(c)
		if err != nil {
			return err
		}
		if !changed {
			out = before
			return nil
		}
		if _, err := tx.Exec(ctx,
			`UPDATE claims SET settled_amount = $2, status = $3, adjuster_id = $4,
				assigned_at = $5, decided_at = $6, paid_at = $7, version = $8, updated_at = $9
			 WHERE id = $1`,
			c.ID, int64(c.SettledAmount), string(c.Status), c.AdjusterID,
			c.AssignedAt, c.DecidedAt, c.PaidAt, c.Version, c.UpdatedAt,
		); err != nil {
			return fmt.Errorf("claim update failed: %w", err)
		}
		if err := saveMessages(ctx, tx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ListClaims(ctx context.Context, accidentID identifier.ID) ([]domain.Claim, error) {
	claims := []domain.Claim{}
	err := s.withTx(ctx, snapshotTx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			"SELECT "+claimColumns+" FROM claims WHERE accident_identifier = $1 ORDER BY submitted_at, id",
			accidentID.String())
		if err != nil {
			return fmt.Errorf("claim query failed: %w", err)
		}
		for rows.Next() {
			c, err := scanClaim(rows)
			if err != nil {
				rows.Close()
				return err
			}
			claims = append(claims, *c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for i := range claims {
			if claims[i].Messages, err = loadMessages(ctx, tx, claims[i].ID); err != nil {
				return err
			}
		}
		return nil
	})
	return claims, err
}

func loadClaim(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Claim, error) {
	query := "SELECT " + claimColumns + " FROM claims WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	c, err := scanClaim(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if c.Messages, err = loadMessages(ctx, q, id); err != nil {
		return nil, err
	}
	return c, nil
}

func scanClaim(row pgx.Row) (*domain.Claim, error) {
	var (
		c                domain.Claim
		accidentID       string
		claimed, settled int64
		status           string
	)
	err := row.Scan(
		&c.ID, &accidentID, &c.VehicleRef, &c.InsurerID, &c.PolicyNumber, &c.DriverID,
		&c.FaultPercent, &claimed, &settled, &status, &c.AdjusterID, &c.SubmittedAt,
		&c.AssignedAt, &c.DecidedAt, &c.PaidAt, &c.Version, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("claim scan failed: %w", err)
	}
	c.AccidentID = identifier.ID(accidentID)
	c.ClaimedAmount = domain.Amount(claimed)
	c.SettledAmount = domain.Amount(settled)
	c.Status = domain.ClaimStatus(status)
	return &c, nil
}

func saveMessages(ctx context.Context, tx pgx.Tx, c *domain.Claim) error {
	batch := &pgx.Batch{}
	for i, m := range c.Messages {
		batch.Queue(
			`INSERT INTO claim_messages (claim_id, accident_identifier, message_id, position, author_id, body, sent_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (claim_id, message_id) DO NOTHING`,
			c.ID, c.AccidentID.String(), m.ID, i, m.AuthorID, m.Body, m.SentAt,
		)
	}
	return execBatch(ctx, tx, batch)
}

func loadMessages(ctx context.Context, q querier, claimID string) ([]domain.Message, error) {
	rows, err := q.Query(ctx,
		"SELECT message_id, author_id, body, sent_at FROM claim_messages WHERE claim_id = $1 ORDER BY position",
		claimID)
	if err != nil {
		return nil, fmt.Errorf("message query failed: %w", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.AuthorID, &m.Body, &m.SentAt); err != nil {
			return nil, fmt.Errorf("message scan failed: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ---------------------------------------------------------------------------
// Subrogations
// ---------------------------------------------------------------------------

const subrogationColumns = `id, accident_identifier, claimant_insurer, respondent_insurer, amount,
	fault_percent, status, filed_at, resolved_at, version`

func (s *PostgresStore) CreateSubrogation(ctx context.Context, sub *domain.SubrogationClaim) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO subrogations ("+subrogationColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		sub.ID, sub.AccidentID.String(), sub.ClaimantInsurer, sub.RespondentInsurer, int64(sub.Amount),
		sub.FaultPercent, string(sub.Status), sub.FiledAt, sub.ResolvedAt, sub.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("subrogation insert failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubrogation(ctx context.Context, id string) (*domain.SubrogationClaim, error) {
	sub, err := scanSubrogation(s.db.QueryRow(ctx, "SELECT "+subrogationColumns+" FROM subrogations WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return sub, err
}

func (s *PostgresStore) UpdateSubrogation(ctx context.Context, id string, fn SubrogationMutation) (*domain.SubrogationClaim, error) {
	var out *domain.SubrogationClaim
	err := s.withTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		sub, err := scanSubrogation(tx.QueryRow(ctx,
			"SELECT "+subrogationColumns+" FROM subrogations WHERE id = $1 FOR UPDATE", id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}
		before := sub.Clone()
		changed, err := fn(sub)
		if err != nil {
			return err
		}
		if !changed {
			out = before
			return nil
		}
		if _, err := tx.Exec(ctx,
			"UPDATE subrogations SET status = $2, resolved_at = $3, version = $4 WHERE id = $1",
			sub.ID, string(sub.Status), sub.ResolvedAt, sub.Version,
		); err != nil {
			return fmt.Errorf("subrogation update failed: %w", err)
		}
		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ListSubrogations(ctx context.Context, accidentID identifier.ID) ([]domain.SubrogationClaim, error) {
	return s.querySubrogations(ctx,
		"SELECT "+subrogationColumns+" FROM subrogations WHERE accident_identifier = $1 ORDER BY filed_at, id",
		accidentID.String())
}

func (s *PostgresStore) ListApprovedSubrogations(ctx context.Context, a, b string) ([]domain.SubrogationClaim, error) {
	return s.querySubrogations(ctx,
		`SELECT `+subrogationColumns+` FROM subrogations
		 WHERE status = 'approved'
		   AND ((claimant_insurer = $1 AND respondent_insurer = $2)
		     OR (claimant_insurer = $2 AND respondent_insurer = $1))
		 ORDER BY filed_at, id`,
		a, b)
}

func (s *PostgresStore) querySubrogations(ctx context.Context, query string, args ...any) ([]domain.SubrogationClaim, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("subrogation query failed: %w", err)
	}
	defer rows.Close()

	subs := []domain.SubrogationClaim{}
	for rows.Next() {
		sub, err := scanSubrogation(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func scanSubrogation(row pgx.Row) (*domain.SubrogationClaim, error) {
	var (
		sub        domain.SubrogationClaim
		accidentID string
		amount     int64
		status     string
	)
	err := row.Scan(
		&sub.ID, &accidentID, &sub.ClaimantInsurer, &sub.RespondentInsurer, &amount,
		&sub.FaultPercent, &status, &sub.FiledAt, &sub.ResolvedAt, &sub.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("subrogation scan failed: %w", err)
	}
	sub.AccidentID = identifier.ID(accidentID)
	sub.Amount = domain.Amount(amount)
	sub.Status = domain.SubrogationStatus(status)
	return &sub, nil
}

// ---------------------------------------------------------------------------
// Idempotency keys
// ---------------------------------------------------------------------------

func (s *PostgresStore) ReserveKey(ctx context.Context, key, requestHash string) (*IdempotencyRecord, error) {
	var existing *IdempotencyRecord
	err := s.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var (
			storedHash   string
			storedStatus string
			respStatus   *int
			respBody     json.RawMessage
		)
		err := tx.QueryRow(ctx,
			"SELECT request_hash, status, response_status, response_body FROM idempotency_keys WHERE key = $1",
			key,
		).Scan(&storedHash, &storedStatus, &respStatus, &respBody)

		if err == nil {
			if storedHash != requestHash {
				return ErrIdempotencyMismatch
			}
			if storedStatus != keyCompleted {
				return ErrIdempotencyConflict
			}
			existing = &IdempotencyRecord{
				Key:            key,
				RequestHash:    storedHash,
				Status:         storedStatus,
				ResponseBody:   respBody,
				ResponseStatus: deref(respStatus),
			}
			return nil
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("idempotency query failed: %w", err)
		}

		_, err = tx.Exec(ctx,
			"INSERT INTO idempotency_keys (key, request_hash, status) VALUES ($1, $2, $3)",
			key, requestHash, keyInProgress,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrIdempotencyConflict
			}
			return fmt.Errorf("key reservation failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *PostgresStore) CompleteKey(ctx context.Context, key string, status int, body []byte) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE idempotency_keys SET status = $2, response_status = $3, response_body = $4 WHERE key = $1",
		key, keyCompleted, status, json.RawMessage(body),
	)
	if err != nil {
		return fmt.Errorf("idempotency update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ReleaseKey(ctx context.Context, key string) error {
	_, err := s.db.Exec(ctx,
		"DELETE FROM idempotency_keys WHERE key = $1 AND status = $2",
		key, keyInProgress,
	)
	return err
}
