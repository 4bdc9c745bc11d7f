package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/ledgerz-backend/internal/accounts"
	"github.com/angelmondragon/ledgerz-backend/internal/audit"
	"github.com/angelmondragon/ledgerz-backend/internal/idempotency"
	"github.com/angelmondragon/ledgerz-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgerz-backend/pkg/errors"
	"github.com/angelmondragon/ledgerz-backend/pkg/metrics"
	"github.com/angelmondragon/ledgerz-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MaxDescriptionLength caps transaction descriptions.
const MaxDescriptionLength = 500

const entityTypeTransaction = "transaction"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type auditRecorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Actor identifies the authenticated caller for authorization and auditing.
type Actor struct {
	ID        uuid.UUID
	Role      enums.ActorRole
	IPAddress *string
	UserAgent *string
}

// CreateInput carries the data required to append a new ledger entry.
type CreateInput struct {
	AccountID      uuid.UUID
	Amount         decimal.Decimal
	Fee            decimal.Decimal
	Type           enums.TransactionType
	Description    *string
	Timestamp      *time.Time
	IdempotencyKey string
}

// UpdateInput carries the replacement values for an existing entry.
type UpdateInput struct {
	Amount      decimal.Decimal
	Fee         decimal.Decimal
	Type        enums.TransactionType
	Description *string
	Timestamp   *time.Time
}

// CreateResult is either a freshly committed entry or a replay of the stored
// response for a previously used idempotency key.
type CreateResult struct {
	Transaction  *models.Transaction
	Replayed     bool
	StoredStatus int
	StoredBody   json.RawMessage
}

// UpdateResult carries the two entries appended by an update.
type UpdateResult struct {
	Reversal    *models.Transaction
	Replacement *models.Transaction
}

// DeleteResult carries the reversal entry appended by a delete.
type DeleteResult struct {
	Reversal *models.Transaction
}

// ListResult is a page of entries plus the total row count.
type ListResult struct {
	Items    []models.Transaction
	Page     int
	PageSize int
	Total    int64
}

// Service is the transaction engine. All writes are append-only: updates and
// deletes are expressed as reversal entries, never as row mutations.
type Service interface {
	Create(ctx context.Context, actor Actor, input CreateInput) (*CreateResult, error)
	Update(ctx context.Context, actor Actor, transactionID uuid.UUID, input UpdateInput) (*UpdateResult, error)
	Delete(ctx context.Context, actor Actor, transactionID uuid.UUID) (*DeleteResult, error)
	GetTransaction(ctx context.Context, actor Actor, transactionID uuid.UUID) (*models.Transaction, error)
	ListAccountTransactions(ctx context.Context, actor Actor, accountID uuid.UUID, params pagination.Params) (*ListResult, error)
	ListAllTransactions(ctx context.Context, actor Actor, params pagination.Params) (*ListResult, error)
}

type service struct {
	repo     Repository
	accounts accounts.Repository
	tx       txRunner
	idem     idempotency.Coordinator
	audit    auditRecorder
	metrics  *metrics.TransactionMetrics
	now      func() time.Time
}

// NewService builds the transaction engine with its required dependencies.
// The metrics and audit dependencies are optional.
func NewService(repo Repository, accountsRepo accounts.Repository, tx txRunner, idem idempotency.Coordinator, recorder auditRecorder, txMetrics *metrics.TransactionMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if accountsRepo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if idem == nil {
		return nil, fmt.Errorf("idempotency coordinator required")
	}
	return &service{
		repo:     repo,
		accounts: accountsRepo,
		tx:       tx,
		idem:     idem,
		audit:    recorder,
		metrics:  txMetrics,
		now:      time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, actor Actor, input CreateInput) (*CreateResult, error) {
	if actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	// The key is optional. Without one there is no replay protection and a
	// retried request appends a second entry.
	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" {
		normalized, err := idempotency.NormalizeKey(key)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid idempotency key")
		}
		key = normalized

		// Replay check first: a stored response wins unconditionally, even
		// when the retried request body differs from the original.
		if replay, err := s.replayFor(ctx, key); err != nil || replay != nil {
			return replay, err
		}
	}

	if err := validateEntryValues(input.Amount, input.Fee, input.Type, input.Description); err != nil {
		s.incRejected("validation")
		return nil, err
	}
	if input.AccountID == uuid.Nil {
		s.incRejected("validation")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account_id is required")
	}

	account, err := s.findAccount(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAccount(actor, account); err != nil {
		return nil, err
	}

	var created *models.Transaction
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		accountsRepo := s.accounts.WithTx(tx)

		locked, err := accountsRepo.FindByIDForUpdate(ctx, input.AccountID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock account")
		}
		prevCumulative, err := s.latestCumulative(ctx, repo, locked.ID)
		if err != nil {
			return err
		}

		entry := s.buildEntry(locked.ID, input, s.now().UTC())
		newBalance := locked.Balance.Add(entry.Net())
		if newBalance.IsNegative() {
			return insufficientBalanceError(locked.Balance, entry.Net())
		}
		entry.CumulativeBalance = prevCumulative.Add(entry.Net())

		if _, err := repo.Create(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
		}
		if err := accountsRepo.UpdateBalance(ctx, locked.ID, newBalance); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balance cache")
		}

		if key != "" {
			accountID := locked.ID
			if err := s.idem.WithTx(tx).Claim(ctx, key, &accountID, http.StatusCreated, NewTransactionView(*entry)); err != nil {
				return err
			}
		}
		created = entry
		return nil
	})
	if errors.Is(err, idempotency.ErrKeyConflict) {
		// A concurrent request won the key. Its committed response is the
		// answer for this request too.
		replay, lookupErr := s.replayFor(ctx, key)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if replay != nil {
			return replay, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key already in use")
	}
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeInsufficientBalance) {
			s.incRejected("insufficient_balance")
		}
		return nil, err
	}

	s.incCreated(created.Type)
	s.recordAudit(ctx, actor, enums.AuditActionCreateTransaction, created.ID, map[string]any{
		"account_id": created.AccountID,
		"amount":     created.Amount.StringFixed(2),
		"fee":        created.Fee.StringFixed(2),
		"type":       created.Type,
	})
	return &CreateResult{Transaction: created}, nil
}

func (s *service) Update(ctx context.Context, actor Actor, transactionID uuid.UUID, input UpdateInput) (*UpdateResult, error) {
	original, err := s.loadForWrite(ctx, actor, transactionID)
	if err != nil {
		return nil, err
	}
	if err := validateEntryValues(input.Amount, input.Fee, input.Type, input.Description); err != nil {
		s.incRejected("validation")
		return nil, err
	}

	var result UpdateResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		accountsRepo := s.accounts.WithTx(tx)

		locked, err := accountsRepo.FindByIDForUpdate(ctx, original.AccountID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock account")
		}
		if err := s.ensureNotReversed(ctx, repo, original.ID); err != nil {
			return err
		}
		prevCumulative, err := s.latestCumulative(ctx, repo, locked.ID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		reversal := buildReversal(original, now)
		// The reversal's cumulative balance may dip below zero mid-update; only
		// the account balance after the replacement has to be non-negative.
		reversal.CumulativeBalance = prevCumulative.Add(reversal.Net())

		replacement := s.buildEntry(original.AccountID, CreateInput{
			AccountID:   original.AccountID,
			Amount:      input.Amount,
			Fee:         input.Fee,
			Type:        input.Type,
			Description: input.Description,
			Timestamp:   input.Timestamp,
		}, now.Add(time.Microsecond))
		finalBalance := locked.Balance.Add(reversal.Net()).Add(replacement.Net())
		if finalBalance.IsNegative() {
			return insufficientBalanceError(locked.Balance, reversal.Net().Add(replacement.Net()))
		}
		replacement.CumulativeBalance = reversal.CumulativeBalance.Add(replacement.Net())

		if _, err := repo.Create(ctx, reversal); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append reversal entry")
		}
		if _, err := repo.Create(ctx, replacement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append replacement entry")
		}
		if err := accountsRepo.UpdateBalance(ctx, locked.ID, finalBalance); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balance cache")
		}

		result = UpdateResult{Reversal: reversal, Replacement: replacement}
		return nil
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeInsufficientBalance) {
			s.incRejected("insufficient_balance")
		}
		return nil, err
	}

	s.incReversed("update")
	s.incCreated(result.Replacement.Type)
	s.recordAudit(ctx, actor, enums.AuditActionUpdateTransaction, original.ID, map[string]any{
		"account_id":     original.AccountID,
		"reversal_id":    result.Reversal.ID,
		"replacement_id": result.Replacement.ID,
	})
	return &result, nil
}

func (s *service) Delete(ctx context.Context, actor Actor, transactionID uuid.UUID) (*DeleteResult, error) {
	original, err := s.loadForWrite(ctx, actor, transactionID)
	if err != nil {
		return nil, err
	}

	var result DeleteResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		accountsRepo := s.accounts.WithTx(tx)

		locked, err := accountsRepo.FindByIDForUpdate(ctx, original.AccountID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock account")
		}
		if err := s.ensureNotReversed(ctx, repo, original.ID); err != nil {
			return err
		}
		prevCumulative, err := s.latestCumulative(ctx, repo, locked.ID)
		if err != nil {
			return err
		}

		// A pure reversal always applies, even when the reversed credit was
		// already spent and the cached balance goes negative.
		reversal := buildReversal(original, s.now().UTC())
		newBalance := locked.Balance.Add(reversal.Net())
		reversal.CumulativeBalance = prevCumulative.Add(reversal.Net())

		if _, err := repo.Create(ctx, reversal); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append reversal entry")
		}
		if err := accountsRepo.UpdateBalance(ctx, locked.ID, newBalance); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balance cache")
		}

		result = DeleteResult{Reversal: reversal}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.incReversed("delete")
	s.recordAudit(ctx, actor, enums.AuditActionDeleteTransaction, original.ID, map[string]any{
		"account_id":  original.AccountID,
		"reversal_id": result.Reversal.ID,
	})
	return &result, nil
}

func (s *service) GetTransaction(ctx context.Context, actor Actor, transactionID uuid.UUID) (*models.Transaction, error) {
	if actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}

	entry, err := s.repo.FindByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup transaction")
	}

	account, err := s.findAccount(ctx, entry.AccountID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAccount(actor, account); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) ListAccountTransactions(ctx context.Context, actor Actor, accountID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}

	account, err := s.findAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAccount(actor, account); err != nil {
		return nil, err
	}

	normalized := params.Normalize()
	rows, total, err := s.repo.ListByAccount(ctx, accountID, normalized)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list account transactions")
	}
	return &ListResult{Items: rows, Page: normalized.Page, PageSize: normalized.PageSize, Total: total}, nil
}

func (s *service) ListAllTransactions(ctx context.Context, actor Actor, params pagination.Params) (*ListResult, error) {
	if actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !actor.Role.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "privileged role required")
	}

	normalized := params.Normalize()
	rows, total, err := s.repo.ListAll(ctx, normalized)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	return &ListResult{Items: rows, Page: normalized.Page, PageSize: normalized.PageSize, Total: total}, nil
}

// loadForWrite fetches the original entry and enforces the shared update and
// delete preconditions: existence, ownership, and not itself a reversal.
func (s *service) loadForWrite(ctx context.Context, actor Actor, transactionID uuid.UUID) (*models.Transaction, error) {
	if actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}

	original, err := s.repo.FindByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup transaction")
	}

	account, err := s.findAccount(ctx, original.AccountID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAccount(actor, account); err != nil {
		return nil, err
	}
	if original.IsReversal {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "reversal entries cannot be modified")
	}
	return original, nil
}

// latestCumulative returns the cumulative balance of the account's most recent
// entry, or zero for an account with no history.
func (s *service) latestCumulative(ctx context.Context, repo Repository, accountID uuid.UUID) (decimal.Decimal, error) {
	latest, err := repo.LatestForAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest entry")
	}
	if latest == nil {
		return decimal.Zero, nil
	}
	return latest.CumulativeBalance, nil
}

func (s *service) ensureNotReversed(ctx context.Context, repo Repository, originalID uuid.UUID) error {
	reversed, err := repo.HasReversal(ctx, originalID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check reversal state")
	}
	if reversed {
		return pkgerrors.New(pkgerrors.CodeConflict, "transaction already reversed")
	}
	return nil
}

func (s *service) findAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup account")
	}
	return account, nil
}

func (s *service) authorizeAccount(actor Actor, account *models.Account) error {
	if account.OwnerUserID != actor.ID && !actor.Role.IsPrivileged() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "account does not belong to caller")
	}
	return nil
}

func (s *service) replayFor(ctx context.Context, key string) (*CreateResult, error) {
	record, err := s.idem.Lookup(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency lookup")
	}
	if record == nil {
		return nil, nil
	}
	if s.metrics != nil {
		s.metrics.IncIdempotentReplay()
	}
	return &CreateResult{
		Replayed:     true,
		StoredStatus: record.StatusCode,
		StoredBody:   record.ResponseBody,
	}, nil
}

func (s *service) buildEntry(accountID uuid.UUID, input CreateInput, createdAt time.Time) *models.Transaction {
	timestamp := createdAt
	if input.Timestamp != nil {
		timestamp = input.Timestamp.UTC()
	}
	var description *string
	if input.Description != nil {
		trimmed := strings.TrimSpace(*input.Description)
		description = &trimmed
	}
	return &models.Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      input.Amount,
		Fee:         input.Fee,
		Type:        input.Type,
		Description: description,
		Timestamp:   timestamp,
		CreatedAt:   createdAt,
	}
}

func buildReversal(original *models.Transaction, createdAt time.Time) *models.Transaction {
	description := fmt.Sprintf("Reversal of %s", original.ID)
	originalID := original.ID
	return &models.Transaction{
		ID:                    uuid.New(),
		AccountID:             original.AccountID,
		Amount:                original.Amount,
		Fee:                   original.Fee,
		Type:                  original.Type.Opposite(),
		Description:           &description,
		Timestamp:             createdAt,
		IsReversal:            true,
		OriginalTransactionID: &originalID,
		CreatedAt:             createdAt,
	}
}

func validateEntryValues(amount, fee decimal.Decimal, txType enums.TransactionType, description *string) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if fee.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "fee must not be negative")
	}
	if !txType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "type must be incoming or outgoing")
	}
	if description != nil && len(strings.TrimSpace(*description)) > MaxDescriptionLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("description exceeds %d characters", MaxDescriptionLength))
	}
	return nil
}

func insufficientBalanceError(balance, net decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "transaction would overdraw account").
		WithDetails(map[string]string{
			"balance": balance.StringFixed(2),
			"net":     net.StringFixed(2),
		})
}

func (s *service) recordAudit(ctx context.Context, actor Actor, action enums.AuditAction, entityID uuid.UUID, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	actorID := actor.ID
	s.audit.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: entityTypeTransaction,
		EntityID:   entityID,
		ActorID:    &actorID,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		Metadata:   metadata,
	})
}

func (s *service) incCreated(txType enums.TransactionType) {
	if s.metrics != nil {
		s.metrics.IncCreated(string(txType))
	}
}

func (s *service) incReversed(reason string) {
	if s.metrics != nil {
		s.metrics.IncReversed(reason)
	}
}

func (s *service) incRejected(reason string) {
	if s.metrics != nil {
		s.metrics.IncRejected(reason)
	}
}
