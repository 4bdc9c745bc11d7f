package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/ledgerz-backend/api/responses"
	"github.com/angelmondragon/ledgerz-backend/api/validators"
	"github.com/angelmondragon/ledgerz-backend/internal/audit"
	"github.com/angelmondragon/ledgerz-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ledgerz-backend/pkg/errors"
	"github.com/angelmondragon/ledgerz-backend/pkg/logger"
)

type auditListView struct {
	Items    []models.AuditLog `json:"items"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Total    int64             `json:"total"`
}

// AdminAuditTrail lists the audit history for one entity. Routes behind the
// privileged role check.
func AdminAuditTrail(repo audit.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit repository unavailable"))
			return
		}
		entityID, err := validators.ParseURLUUID(chi.URLParam(r, "entityId"), "entityId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, total, err := repo.ListByEntity(r.Context(), entityID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit trail"))
			return
		}
		responses.WriteSuccess(w, auditListView{
			Items:    rows,
			Page:     params.Normalize().Page,
			PageSize: params.Normalize().PageSize,
			Total:    total,
		})
	}
}
