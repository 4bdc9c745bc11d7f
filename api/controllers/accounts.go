package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/ledgerz-backend/api/responses"
	"github.com/angelmondragon/ledgerz-backend/api/validators"
	"github.com/angelmondragon/ledgerz-backend/internal/accounts"
	"github.com/angelmondragon/ledgerz-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ledgerz-backend/pkg/errors"
	"github.com/angelmondragon/ledgerz-backend/pkg/logger"
)

type createAccountRequest struct {
	OwnerUserID *uuid.UUID `json:"owner_user_id"`
}

type accountView struct {
	ID          uuid.UUID `json:"id"`
	OwnerUserID uuid.UUID `json:"owner_user_id"`
	Balance     string    `json:"balance"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newAccountView(account models.Account) accountView {
	return accountView{
		ID:          account.ID,
		OwnerUserID: account.OwnerUserID,
		Balance:     account.Balance.StringFixed(2),
		CreatedAt:   account.CreatedAt,
		UpdatedAt:   account.UpdatedAt,
	}
}

// AccountCreate opens a new account. Omitting owner_user_id opens the account
// for the caller.
func AccountCreate(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}
		actor, err := accountsActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createAccountRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		owner := uuid.Nil
		if req.OwnerUserID != nil {
			owner = *req.OwnerUserID
		}

		account, err := svc.CreateAccount(r.Context(), actor, owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newAccountView(*account))
	}
}

// AccountGet returns the account when the caller owns it or is privileged.
func AccountGet(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}
		actor, err := accountsActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		accountID, err := validators.ParseURLUUID(chi.URLParam(r, "accountId"), "accountId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.GetAccount(r.Context(), actor, accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAccountView(*account))
	}
}

// AccountBalance returns the cached balance only.
func AccountBalance(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}
		actor, err := accountsActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		accountID, err := validators.ParseURLUUID(chi.URLParam(r, "accountId"), "accountId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.GetBalance(r.Context(), actor, accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{
			"account_id": accountID.String(),
			"balance":    balance.StringFixed(2),
		})
	}
}
