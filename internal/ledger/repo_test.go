package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/ledgerz-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerz-backend/pkg/enums"
	"github.com/angelmondragon/ledgerz-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEntry(t *testing.T, env *ledgerTestEnv, accountID uuid.UUID, createdAt time.Time, cumulative string) *models.Transaction {
	t.Helper()
	entry := &models.Transaction{
		ID:                uuid.New(),
		AccountID:         accountID,
		Amount:            decimal.NewFromInt(10),
		Fee:               decimal.Zero,
		Type:              enums.TransactionTypeIncoming,
		Timestamp:         createdAt,
		CumulativeBalance: decimal.RequireFromString(cumulative),
		CreatedAt:         createdAt,
	}
	_, err := env.repo.Create(context.Background(), entry)
	require.NoError(t, err)
	return entry
}

func TestLatestForAccountOrdering(t *testing.T) {
	env := newLedgerTestEnv(t)
	account := env.seedAccount(t, uuid.New(), "0.00")
	ctx := context.Background()

	latest, err := env.repo.LatestForAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Nil(t, latest, "empty history should yield no latest entry")

	base := time.Now().UTC().Truncate(time.Second)
	seedEntry(t, env, account.ID, base, "10")
	newest := seedEntry(t, env, account.ID, base.Add(time.Second), "20")

	latest, err = env.repo.LatestForAccount(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, newest.ID, latest.ID)
	assert.True(t, latest.CumulativeBalance.Equal(decimal.RequireFromString("20")))
}

func TestHasReversal(t *testing.T) {
	env := newLedgerTestEnv(t)
	account := env.seedAccount(t, uuid.New(), "0.00")
	ctx := context.Background()

	base := time.Now().UTC()
	original := seedEntry(t, env, account.ID, base, "10")

	reversed, err := env.repo.HasReversal(ctx, original.ID)
	require.NoError(t, err)
	assert.False(t, reversed)

	reversal := buildReversal(original, base.Add(time.Second))
	reversal.CumulativeBalance = decimal.Zero
	_, err = env.repo.Create(ctx, reversal)
	require.NoError(t, err)

	reversed, err = env.repo.HasReversal(ctx, original.ID)
	require.NoError(t, err)
	assert.True(t, reversed)
}

func TestListAllPaginates(t *testing.T) {
	env := newLedgerTestEnv(t)
	first := env.seedAccount(t, uuid.New(), "0.00")
	second := env.seedAccount(t, uuid.New(), "0.00")
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	seedEntry(t, env, first.ID, base, "10")
	seedEntry(t, env, second.ID, base.Add(time.Second), "10")
	seedEntry(t, env, first.ID, base.Add(2*time.Second), "20")

	rows, total, err := env.repo.ListAll(ctx, pagination.Params{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, rows, 2)

	rows, total, err = env.repo.ListByAccount(ctx, first.ID, pagination.Params{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, rows, 2)
}
