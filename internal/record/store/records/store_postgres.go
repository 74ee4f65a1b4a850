package records

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"quorumgate/internal/merkle"
	"quorumgate/internal/record"
	"quorumgate/pkg/domain"
	"quorumgate/pkg/platform/sentinel"
)

// PostgresStore persists the committed record log in PostgreSQL. Appends are
// insert-only; the unique constraints on record and proposal IDs make replays
// of the same commit idempotent to detect.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Schema is the DDL for the record log. Applied by the operator or the
// integration test harness, not at runtime.
const Schema = `
CREATE TABLE IF NOT EXISTS permanent_records (
	id            UUID PRIMARY KEY,
	proposal_id   UUID NOT NULL UNIQUE,
	request_id    UUID NOT NULL,
	data          BYTEA NOT NULL,
	token_hash    TEXT NOT NULL,
	leaf_index    BIGINT NOT NULL,
	root          BYTEA NOT NULL,
	proof         JSONB NOT NULL,
	votes         JSONB NOT NULL,
	committed_at  TIMESTAMPTZ NOT NULL
);
`

func (s *PostgresStore) Append(ctx context.Context, rec *record.PermanentRecord) error {
	proof, err := json.Marshal(rec.Proof)
	if err != nil {
		return fmt.Errorf("marshal proof: %w", err)
	}
	votes, err := json.Marshal(rec.ContributingVotes)
	if err != nil {
		return fmt.Errorf("marshal votes: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO permanent_records
			(id, proposal_id, request_id, data, token_hash, leaf_index, root, proof, votes, committed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID.String(), rec.ProposalID.String(), rec.RequestID.String(),
		rec.Data, rec.TokenHash, int64(rec.LeafIndex), rec.Root[:],
		proof, votes, rec.CommitTimestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return sentinel.ErrConflict
		}
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id domain.RecordID) (*record.PermanentRecord, error) {
	return s.get(ctx, `WHERE id = $1`, id.String())
}

func (s *PostgresStore) GetByProposal(ctx context.Context, id domain.ProposalID) (*record.PermanentRecord, error) {
	return s.get(ctx, `WHERE proposal_id = $1`, id.String())
}

func (s *PostgresStore) Count(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM permanent_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return uint64(n), nil
}

func (s *PostgresStore) get(ctx context.Context, where string, arg any) (*record.PermanentRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, proposal_id, request_id, data, token_hash, leaf_index, root, proof, votes, committed_at
		FROM permanent_records `+where, arg)

	var (
		rec                             record.PermanentRecord
		recordID, proposalID, requestID string
		leafIndex                       int64
		root, proof, votes              []byte
	)
	err := row.Scan(&recordID, &proposalID, &requestID, &rec.Data, &rec.TokenHash,
		&leafIndex, &root, &proof, &votes, &rec.CommitTimestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}

	if rec.ID, err = domain.ParseRecordID(recordID); err != nil {
		return nil, fmt.Errorf("stored record id: %w", err)
	}
	reqID, err := domain.ParseRequestID(requestID)
	if err != nil {
		return nil, fmt.Errorf("stored request id: %w", err)
	}
	rec.RequestID = reqID
	propID, err := domain.ParseProposalID(proposalID)
	if err != nil {
		return nil, fmt.Errorf("stored proposal id: %w", err)
	}
	rec.ProposalID = propID

	rec.LeafIndex = uint64(leafIndex)
	if len(root) != len(rec.Root) {
		return nil, fmt.Errorf("stored root has %d bytes, want %d (%s)", len(root), len(rec.Root), hex.EncodeToString(root))
	}
	copy(rec.Root[:], root)

	rec.Proof = &merkle.Proof{}
	if err := json.Unmarshal(proof, rec.Proof); err != nil {
		return nil, fmt.Errorf("stored proof: %w", err)
	}
	if err := json.Unmarshal(votes, &rec.ContributingVotes); err != nil {
		return nil, fmt.Errorf("stored votes: %w", err)
	}
	return &rec, nil
}
