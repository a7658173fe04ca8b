package httpapi

import (
	"net/http"

	"github.com/occasync/occasync"
)

func (s *Server) handleAdminGetUsers(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.RequireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	results, err := s.db.Collection("users").
		Find(nil).
		Sort("createdAt", occasync.Descending).
		All(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	users := make([]occasync.Record, len(results))
	for i, rec := range results {
		users[i] = publicUser(rec)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func (s *Server) handleAdminGetListings(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.RequireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	results, err := s.db.Collection("listings").
		Find(nil).
		Sort("createdAt", occasync.Descending).
		All(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"listings": emptyIfNil(results)})
}

func (s *Server) handleAdminGetTransactions(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.RequireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	results, err := s.db.Collection("transactions").
		Find(nil).
		Sort("createdAt", occasync.Descending).
		All(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": emptyIfNil(results)})
}

func (s *Server) handleAdminVerifyUser(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.RequireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		UserID   string `json:"userId"`
		Verified bool   `json:"verified"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.db.Collection("users").UpdateOne(r.Context(),
		occasync.Filter{"id": req.UserID},
		occasync.Update{Set: occasync.Record{"verified": req.Verified}}); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "user updated"})
}

func (s *Server) handleAdminModerateListing(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.RequireAdmin(r); err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		ListingID string `json:"listingId"`
		Status    string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.db.Collection("listings").UpdateOne(r.Context(),
		occasync.Filter{"id": req.ListingID},
		occasync.Update{Set: occasync.Record{"status": req.Status}}); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "listing moderated"})
}
