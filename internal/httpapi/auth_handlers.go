package httpapi

import (
	"net/http"
	"time"

	"github.com/occasync/occasync"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Company  string `json:"company"`
	Siret    string `json:"siret"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// publicUser strips the password hash before a user record leaves the API
func publicUser(rec occasync.Record) occasync.Record {
	out := rec.Clone()
	delete(out, "password")
	return out
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := s.rateLimit(r, "auth:register", 20); err != nil {
		writeError(w, err)
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !validEmail(req.Email) || len(req.Password) < 8 || len(req.Company) < 2 {
		writeError(w, badRequest("email, password and company are required"))
		return
	}

	users := s.db.Collection("users")

	// Pre-check keeps the common case friendly; the database's unique
	// index is the real guarantee in postgres mode
	existing, err := users.FindOne(r.Context(), occasync.Filter{"email": req.Email})
	if err != nil {
		writeError(w, err)
		return
	}
	if existing != nil {
		writeError(w, conflict("email already in use"))
		return
	}

	hash, err := occasync.HashPassword(req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	userID := occasync.NewID()
	role := normalizeRole(req.Role)
	user := occasync.Record{
		"id":        userID,
		"email":     req.Email,
		"password":  hash,
		"company":   req.Company,
		"siret":     req.Siret,
		"role":      role,
		"verified":  false,
		"createdAt": time.Now().UTC().Format(time.RFC3339Nano),
	}

	if _, err := users.InsertOne(r.Context(), user); err != nil {
		writeError(w, err)
		return
	}

	token, err := s.signer.Generate(userID, req.Email, role)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token": token,
		"user":  publicUser(user),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := s.rateLimit(r, "auth:login", 50); err != nil {
		writeError(w, err)
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !validEmail(req.Email) || len(req.Password) < 8 {
		writeError(w, badRequest("invalid email or password"))
		return
	}

	users := s.db.Collection("users")
	user, err := users.FindOne(r.Context(), occasync.Filter{"email": req.Email})
	if err != nil {
		writeError(w, err)
		return
	}

	// One message for both failure shapes so the endpoint does not
	// reveal which emails exist
	if user == nil || !occasync.ComparePassword(user.StringField("password"), req.Password) {
		writeErrorMessage(w, http.StatusUnauthorized, "incorrect email or password")
		return
	}

	token, err := s.signer.Generate(user.ID(), user.StringField("email"), user.StringField("role"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  publicUser(user),
	})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	principal, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	users := s.db.Collection("users")
	user, err := users.FindOne(r.Context(), occasync.Filter{"id": principal.UserID})
	if err != nil {
		writeError(w, err)
		return
	}
	if user == nil {
		writeError(w, notFound("user not found"))
		return
	}

	writeJSON(w, http.StatusOK, publicUser(user))
}
