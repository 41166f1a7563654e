// Package httpapi exposes the vault service over a JSON HTTP API.
//
// The server stores ciphertext only: clients encrypt before POSTing and
// decrypt after GETing, so payload plaintext and unwrapped vault keys never
// reach this process.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/privault/privault/internal/errs"
	"github.com/privault/privault/internal/model"
	"github.com/privault/privault/internal/service"
)

// genericAuthMsg is the one message every authentication and decryption
// failure produces. Keeping them identical denies an oracle that would
// distinguish "wrong password" from "corrupted data".
const genericAuthMsg = "invalid credentials"

// Server wires services into HTTP handlers.
type Server struct {
	auth      service.AuthService
	vault     service.VaultService
	applier   *service.Applier
	signKey   []byte
	accessTTL time.Duration
	log       *zap.Logger
}

// New constructs a Server with injected services.
func New(auth service.AuthService, vault service.VaultService, applier *service.Applier, signKey []byte, accessTTL time.Duration, log *zap.Logger) *Server {
	return &Server{auth: auth, vault: vault, applier: applier, signKey: signKey, accessTTL: accessTTL, log: log}
}

// Handler returns the routed handler with logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /api/credentials", s.requireAuth(s.handleList))
	mux.HandleFunc("POST /api/credentials", s.requireAuth(s.handleAdd))
	mux.HandleFunc("GET /api/credentials/{id}", s.requireAuth(s.handleGet))
	mux.HandleFunc("PUT /api/credentials/{id}", s.requireAuth(s.handleUpdate))
	mux.HandleFunc("DELETE /api/credentials/{id}", s.requireAuth(s.handleDelete))
	mux.HandleFunc("GET /api/sync/credentials", s.requireAuth(s.handleSyncFetch))
	mux.HandleFunc("POST /api/sync/credential", s.requireAuth(s.handleSyncPush))
	return withRecover(s.log, withLogging(s.log, mux))
}

// --- wire shapes ---

type registerRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	KekSalt    []byte `json:"kek_salt"`
	WrappedKey []byte `json:"wrapped_key"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	KekSalt     []byte `json:"kek_salt"`
	WrappedKey  []byte `json:"wrapped_key"`
}

type credentialRequest struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

type credentialResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toCredentialResponse(c *model.Credential) credentialResponse {
	return credentialResponse{
		ID:        c.ID.String(),
		Name:      c.Name,
		Data:      []byte(c.Ciphertext),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// --- auth ---

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	var km *service.KeyMaterial
	if len(req.KekSalt) != 0 || len(req.WrappedKey) != 0 {
		km = &service.KeyMaterial{KekSalt: req.KekSalt, WrappedKey: req.WrappedKey}
	}
	u, err := s.auth.Register(r.Context(), req.Username, req.Password, km)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"user_id": u.ID.String()})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	u, err := s.auth.LoginWithIP(r.Context(), req.Username, req.Password, r.RemoteAddr)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	token, err := s.issueAccessToken(u.ID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		UserID:      u.ID.String(),
		KekSalt:     u.KekSalt,
		WrappedKey:  u.WrappedKey,
	})
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *Server) issueAccessToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
}

// --- credentials ---

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())
	creds, err := s.vault.List(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]credentialResponse, 0, len(creds))
	for i := range creds {
		out = append(out, toCredentialResponse(&creds[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	c, err := s.vault.Add(r.Context(), userID, req.Name, model.Ciphertext(req.Data))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCredentialResponse(c))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())
	id, err := uuid.FromString(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	c, err := s.vault.Get(r.Context(), userID, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCredentialResponse(c))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())
	id, err := uuid.FromString(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	c, err := s.vault.Update(r.Context(), userID, id, model.Ciphertext(req.Data), req.Name)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCredentialResponse(c))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())
	id, err := uuid.FromString(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err := s.vault.Delete(r.Context(), userID, id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- sync ---

func (s *Server) handleSyncFetch(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())
	creds, err := s.vault.List(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]model.SyncRecord, 0, len(creds))
	for i := range creds {
		out = append(out, model.SyncRecord{
			Name:         creds[i].Name,
			Data:         creds[i].Ciphertext,
			LastModified: creds[i].UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSyncPush(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())
	var rec model.SyncRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	applied, err := s.applier.Apply(r.Context(), userID, rec)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"applied": applied})
}

// --- error mapping ---

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid input")
	case errors.Is(err, errs.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, errs.ErrUnauthorized), errors.Is(err, errs.ErrDecryption):
		writeError(w, http.StatusUnauthorized, genericAuthMsg)
	case errors.Is(err, errs.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many attempts")
	default:
		s.log.Error("internal", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"msg": msg})
}
