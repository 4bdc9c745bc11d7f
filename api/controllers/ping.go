package controllers

import (
	"net/http"

	"github.com/angelmondragon/ledgerz-backend/api/middleware"
	"github.com/angelmondragon/ledgerz-backend/api/responses"
)

// ping responds with the scope of the route group so each auth tier can be
// probed independently.
func ping(scope string, withIdentity bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": scope, "status": "ok"}
		if withIdentity {
			if user := middleware.UserIDFromContext(r.Context()); user != "" {
				payload["user_id"] = user
			}
		}
		responses.WriteSuccess(w, payload)
	}
}

func PublicPing() http.HandlerFunc {
	return ping("public", false)
}

func PrivatePing() http.HandlerFunc {
	return ping("private", true)
}

func AdminPing() http.HandlerFunc {
	return ping("admin", true)
}
