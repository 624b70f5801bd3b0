package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/codemavricks/zerohunger/internal/auth"
	"github.com/codemavricks/zerohunger/internal/models"
)

// UserStore is the slice of storage the auth endpoints need.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uint64) (*models.User, error)
	UpdateUserProfile(ctx context.Context, id uint64, name, phone *string, lat, lng *float64) (*models.User, error)
}

type AuthHandler struct {
	Users     UserStore
	JWTSecret string
}

type registerRequest struct {
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	Phone     *string  `json:"phone,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Roles     []string `json:"roles"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func validRoles(roles []string) bool {
	if len(roles) == 0 {
		return false
	}
	for _, r := range roles {
		if r != models.RoleDonor && r != models.RoleVolunteer {
			return false
		}
	}
	return true
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || len(req.Password) < 8 {
		jsonError(w, http.StatusBadRequest, "name, email and a password of at least 8 characters are required")
		return
	}
	if !validRoles(req.Roles) {
		jsonError(w, http.StatusBadRequest, "roles must be one or more of: donor, volunteer")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}

	u, err := h.Users.CreateUser(r.Context(), &models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Phone:        req.Phone,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		Roles:        req.Roles,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, u.ID, u.Name, u.Roles)
	if err != nil {
		writeErr(w, err)
		return
	}

	slog.Info("user registered", "user_id", u.ID, "roles", strings.Join(u.Roles, ","))
	jsonResponse(w, http.StatusCreated, tokenResponse{Token: token, User: u})
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "email and password required")
		return
	}

	u, err := h.Users.GetUserByEmail(r.Context(), req.Email)
	if err != nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
		slog.Warn("login failed", "email", req.Email, "remote", r.RemoteAddr)
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, u.ID, u.Name, u.Roles)
	if err != nil {
		writeErr(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, tokenResponse{Token: token, User: u})
}

// Me handles GET /api/v1/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, CurrentUser(r.Context()))
}

type profileUpdateRequest struct {
	Name      *string  `json:"name,omitempty"`
	Phone     *string  `json:"phone,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// UpdateProfile handles PUT /api/v1/me.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u := CurrentUser(r.Context())
	updated, err := h.Users.UpdateUserProfile(r.Context(), u.ID, req.Name, req.Phone, req.Latitude, req.Longitude)
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, updated)
}
