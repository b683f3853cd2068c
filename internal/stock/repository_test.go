package stock

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapConflictSerializationFailure(t *testing.T) {
	err := mapConflict(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	require.ErrorIs(t, err, ErrConflict)

	wrapped := fmt.Errorf("upsert balance: %w", &pgconn.PgError{Code: "40001"})
	assert.ErrorIs(t, mapConflict(wrapped), ErrConflict)
}

func TestMapConflictPassesThroughOtherErrors(t *testing.T) {
	assert.NoError(t, mapConflict(nil))

	unique := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	assert.NotErrorIs(t, mapConflict(unique), ErrConflict)

	boom := errors.New("boom")
	assert.Equal(t, boom, mapConflict(boom))
}
