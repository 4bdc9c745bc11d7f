package ledger

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/angelmondragon/ledgerz-backend/internal/accounts"
	"github.com/angelmondragon/ledgerz-backend/internal/idempotency"
	"github.com/angelmondragon/ledgerz-backend/pkg/db"
	"github.com/angelmondragon/ledgerz-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerz-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// racingCoordinator simulates another process winning the idempotency key
// between this request's lookup and its claim.
type racingCoordinator struct {
	stored  *models.IdempotencyRecord
	lookups int
	claims  int
}

func (r *racingCoordinator) WithTx(tx *gorm.DB) idempotency.Coordinator { return r }

func (r *racingCoordinator) Lookup(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, nil
	}
	return r.stored, nil
}

func (r *racingCoordinator) Claim(ctx context.Context, key string, accountID *uuid.UUID, statusCode int, response any) error {
	r.claims++
	return idempotency.ErrKeyConflict
}

func (r *racingCoordinator) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func TestCreateKeyConflictAbortsAndReplays(t *testing.T) {
	env := newLedgerTestEnv(t)
	owner := uuid.New()
	account := env.seedAccount(t, owner, "1000.00")
	ctx := context.Background()

	winnerID := uuid.New()
	body, err := json.Marshal(TransactionView{ID: winnerID, AccountID: account.ID, Amount: "50.00", Fee: "2.00", CumulativeBalance: "48.00"})
	if err != nil {
		t.Fatalf("marshal winner body: %v", err)
	}
	coord := &racingCoordinator{
		stored: &models.IdempotencyRecord{
			ID:           uuid.New(),
			Key:          "raced",
			ResponseBody: body,
			StatusCode:   201,
		},
	}

	client, err := db.NewWithConn(env.conn)
	if err != nil {
		t.Fatalf("NewWithConn: %v", err)
	}
	svc, err := NewService(env.repo, accounts.NewRepository(env.conn), client, coord, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	result, err := svc.Create(ctx, ownerActor(owner), CreateInput{
		AccountID:      account.ID,
		Amount:         decimal.RequireFromString("50.00"),
		Fee:            decimal.RequireFromString("2.00"),
		Type:           enums.TransactionTypeIncoming,
		IdempotencyKey: "raced",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !result.Replayed {
		t.Fatal("expected replay of the winning request's response")
	}

	var view TransactionView
	if err := json.Unmarshal(result.StoredBody, &view); err != nil {
		t.Fatalf("unmarshal replayed body: %v", err)
	}
	if view.ID != winnerID {
		t.Fatalf("expected winner id %s, got %s", winnerID, view.ID)
	}

	if coord.claims != 1 {
		t.Fatalf("expected exactly one claim attempt, got %d", coord.claims)
	}

	// The losing write must have rolled back entirely.
	if rows := env.transactionRows(t, account.ID); len(rows) != 0 {
		t.Fatalf("conflicting create must roll back, found %d rows", len(rows))
	}
	if balance := env.accountBalance(t, account.ID); !balance.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("balance must be unchanged, got %s", balance)
	}
}
