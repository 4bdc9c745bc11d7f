package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/ledgerz-backend/api/middleware"
	"github.com/angelmondragon/ledgerz-backend/internal/accounts"
	"github.com/angelmondragon/ledgerz-backend/internal/ledger"
	"github.com/angelmondragon/ledgerz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgerz-backend/pkg/errors"
)

// ledgerActor reads the authenticated caller out of the request context.
func ledgerActor(r *http.Request) (ledger.Actor, error) {
	ctx := r.Context()
	userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
	if err != nil {
		return ledger.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "user identity missing")
	}

	actor := ledger.Actor{
		ID:   userID,
		Role: enums.ActorRole(middleware.RoleFromContext(ctx)),
	}
	if ip := middleware.ClientIPFromContext(ctx); ip != "" {
		actor.IPAddress = &ip
	}
	if ua := middleware.UserAgentFromContext(ctx); ua != "" {
		actor.UserAgent = &ua
	}
	return actor, nil
}

func accountsActor(r *http.Request) (accounts.Actor, error) {
	ctx := r.Context()
	userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
	if err != nil {
		return accounts.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "user identity missing")
	}
	return accounts.Actor{
		ID:   userID,
		Role: enums.ActorRole(middleware.RoleFromContext(ctx)),
	}, nil
}
