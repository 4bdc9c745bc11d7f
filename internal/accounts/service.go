package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/ledgerz-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgerz-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Actor identifies the authenticated caller for authorization checks.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

// Service exposes account creation and balance reads.
type Service interface {
	CreateAccount(ctx context.Context, actor Actor, ownerUserID uuid.UUID) (*models.Account, error)
	GetAccount(ctx context.Context, actor Actor, accountID uuid.UUID) (*models.Account, error)
	GetBalance(ctx context.Context, actor Actor, accountID uuid.UUID) (decimal.Decimal, error)
}

type service struct {
	repo Repository
}

// NewService builds an account service backed by the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) CreateAccount(ctx context.Context, actor Actor, ownerUserID uuid.UUID) (*models.Account, error) {
	if actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if ownerUserID == uuid.Nil {
		ownerUserID = actor.ID
	}
	if ownerUserID != actor.ID && !actor.Role.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot create accounts for other users")
	}

	account := &models.Account{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		Balance:     decimal.Zero,
	}
	created, err := s.repo.Create(ctx, account)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create account")
	}
	return created, nil
}

func (s *service) GetAccount(ctx context.Context, actor Actor, accountID uuid.UUID) (*models.Account, error) {
	if actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}

	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup account")
	}
	if account.OwnerUserID != actor.ID && !actor.Role.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account does not belong to caller")
	}
	return account, nil
}

func (s *service) GetBalance(ctx context.Context, actor Actor, accountID uuid.UUID) (decimal.Decimal, error) {
	account, err := s.GetAccount(ctx, actor, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}
