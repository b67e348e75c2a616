package api

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
)

func (a *API) handleListActivities(w http.ResponseWriter, r *http.Request) {
	all, err := a.svc.Activities.List(r.Context())
	if err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, all)
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	name, email := activityParams(r)
	if err := a.svc.Activities.Signup(r.Context(), name, email, ClientIP(r)); err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Signed up %s for %s", email, name),
	})
}

func (a *API) handleUnregister(w http.ResponseWriter, r *http.Request) {
	name, email := activityParams(r)
	if err := a.svc.Activities.Unregister(r.Context(), name, email, ClientIP(r)); err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Unregistered %s from %s", email, name),
	})
}

func activityParams(r *http.Request) (name, email string) {
	name = chi.URLParam(r, "activity")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name, r.URL.Query().Get("email")
}
