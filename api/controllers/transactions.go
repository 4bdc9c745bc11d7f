package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ledgerz-backend/api/responses"
	"github.com/angelmondragon/ledgerz-backend/api/validators"
	"github.com/angelmondragon/ledgerz-backend/internal/ledger"
	"github.com/angelmondragon/ledgerz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgerz-backend/pkg/errors"
	"github.com/angelmondragon/ledgerz-backend/pkg/logger"
)

const (
	idempotencyKeyHeader   = "Idempotency-Key"
	idempotentReplayHeader = "Idempotent-Replay"

	maxDescriptionLen = 500
)

type createTransactionRequest struct {
	AccountID   string     `json:"account_id" validate:"required,uuid"`
	Amount      string     `json:"amount" validate:"required"`
	Fee         string     `json:"fee"`
	Type        string     `json:"type" validate:"required,oneof=incoming outgoing"`
	Description *string    `json:"description" validate:"omitempty,max=500"`
	Timestamp   *time.Time `json:"timestamp"`
}

type updateTransactionRequest struct {
	Amount      string     `json:"amount" validate:"required"`
	Fee         string     `json:"fee"`
	Type        string     `json:"type" validate:"required,oneof=incoming outgoing"`
	Description *string    `json:"description" validate:"omitempty,max=500"`
	Timestamp   *time.Time `json:"timestamp"`
}

type transactionListView struct {
	Items    []ledger.TransactionView `json:"items"`
	Page     int                      `json:"page"`
	PageSize int                      `json:"page_size"`
	Total    int64                    `json:"total"`
}

func newTransactionListView(result ledger.ListResult) transactionListView {
	return transactionListView{
		Items:    ledger.NewTransactionViews(result.Items),
		Page:     result.Page,
		PageSize: result.PageSize,
		Total:    result.Total,
	}
}

func parseMoney(value, field string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid monetary value").
			WithDetails(map[string]any{"field": field})
	}
	return parsed, nil
}

func sanitizeDescription(description *string) *string {
	if description == nil {
		return nil
	}
	clean := validators.SanitizeString(*description, maxDescriptionLen)
	return &clean
}

// TransactionCreate appends a new ledger entry. The Idempotency-Key header is
// optional; a reused key replays the stored response with its original status,
// while keyless requests get no replay protection.
func TransactionCreate(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		actor, err := ledgerActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createTransactionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		accountID, err := validators.ParseURLUUID(req.AccountID, "account_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := parseMoney(req.Amount, "amount")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		fee, err := parseMoney(req.Fee, "fee")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), actor, ledger.CreateInput{
			AccountID:      accountID,
			Amount:         amount,
			Fee:            fee,
			Type:           enums.TransactionType(req.Type),
			Description:    sanitizeDescription(req.Description),
			Timestamp:      req.Timestamp,
			IdempotencyKey: r.Header.Get(idempotencyKeyHeader),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if result.Replayed {
			w.Header().Set(idempotentReplayHeader, "true")
			responses.WriteSuccessStatus(w, result.StoredStatus, json.RawMessage(result.StoredBody))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ledger.NewTransactionView(*result.Transaction))
	}
}

// TransactionUpdate reverses the original entry and appends a replacement.
func TransactionUpdate(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		actor, err := ledgerActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		transactionID, err := validators.ParseURLUUID(chi.URLParam(r, "transactionId"), "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateTransactionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := parseMoney(req.Amount, "amount")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		fee, err := parseMoney(req.Fee, "fee")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Update(r.Context(), actor, transactionID, ledger.UpdateInput{
			Amount:      amount,
			Fee:         fee,
			Type:        enums.TransactionType(req.Type),
			Description: sanitizeDescription(req.Description),
			Timestamp:   req.Timestamp,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]ledger.TransactionView{
			"reversal":    ledger.NewTransactionView(*result.Reversal),
			"replacement": ledger.NewTransactionView(*result.Replacement),
		})
	}
}

// TransactionDelete reverses the original entry without a replacement.
func TransactionDelete(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		actor, err := ledgerActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		transactionID, err := validators.ParseURLUUID(chi.URLParam(r, "transactionId"), "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Delete(r.Context(), actor, transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]ledger.TransactionView{
			"reversal": ledger.NewTransactionView(*result.Reversal),
		})
	}
}

// TransactionGet returns a single entry.
func TransactionGet(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		actor, err := ledgerActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		transactionID, err := validators.ParseURLUUID(chi.URLParam(r, "transactionId"), "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.GetTransaction(r.Context(), actor, transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ledger.NewTransactionView(*entry))
	}
}

// AccountTransactionList returns the paginated entry history for an account.
func AccountTransactionList(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		actor, err := ledgerActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		accountID, err := validators.ParseURLUUID(chi.URLParam(r, "accountId"), "accountId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListAccountTransactions(r.Context(), actor, accountID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransactionListView(*result))
	}
}

// AdminTransactionList returns all entries across accounts. Privileged only.
func AdminTransactionList(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		actor, err := ledgerActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListAllTransactions(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransactionListView(*result))
	}
}
