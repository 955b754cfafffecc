package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"campus-issue-reporting/pkg/auth"
	"campus-issue-reporting/pkg/middleware"
	"campus-issue-reporting/pkg/report"
	"campus-issue-reporting/pkg/response"
	"campus-issue-reporting/services/auth-service/models"
)

var errEmailTaken = errors.New("email already registered")

type Handler struct {
	db         *gorm.DB
	tokens     *auth.TokenManager
	bcryptCost int
	validate   *validator.Validate
	log        *slog.Logger
}

func NewHandler(db *gorm.DB, tokens *auth.TokenManager, bcryptCost int, log *slog.Logger) *Handler {
	return &Handler{
		db:         db,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		validate:   validator.New(),
		log:        log,
	}
}

func (h *Handler) Routes(health http.Handler) http.Handler {
	mux := http.NewServeMux()
	required := middleware.AuthMiddleware(h.tokens)

	mux.HandleFunc("POST /api/auth/register", h.register)
	mux.HandleFunc("POST /api/auth/login", h.login)
	mux.Handle("GET /api/auth/me", middleware.Chain(http.HandlerFunc(h.me), required))
	mux.Handle("POST /api/auth/staff", middleware.Chain(http.HandlerFunc(h.createStaff),
		required,
		middleware.RequireRole(report.RoleStaff),
	))
	if health != nil {
		mux.Handle("GET /health", health)
	}
	mux.Handle("GET /metrics", middleware.GetMetricsHandler())

	return middleware.Chain(mux,
		middleware.TraceMiddleware,
		middleware.LoggerMiddleware,
		middleware.MetricsMiddleware,
	)
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,min=3,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type staffRequest struct {
	Email      string `json:"email" validate:"required,email,max=254"`
	Password   string `json:"password" validate:"required,min=8,max=72"`
	Name       string `json:"name" validate:"required,min=3,max=100"`
	Role       string `json:"role" validate:"required,oneof=staff officer"`
	Department string `json:"department" validate:"required_if=Role officer,max=100"`
}

type session struct {
	ID         string `json:"id"`
	Token      string `json:"token"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var input registerRequest
	if !h.decode(w, r, &input) {
		return
	}

	user, err := h.createUser(r.Context(), input.Email, input.Password, input.Name, string(report.RoleCitizen), "")
	if err != nil {
		h.userError(w, r, err)
		return
	}
	h.log.InfoContext(r.Context(), "[OK] user registered", "user_id", user.ID)

	h.respondSession(w, r, http.StatusCreated, "User registered successfully", user)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var input loginRequest
	if !h.decode(w, r, &input) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var user models.User
	if err := h.db.WithContext(ctx).Where("email = ?", normalizeEmail(input.Email)).First(&user).Error; err != nil {
		h.log.WarnContext(r.Context(), "failed login attempt")
		response.Error(w, http.StatusUnauthorized, "Invalid email or password", "")
		return
	}
	if !auth.CheckPasswordHash(input.Password, user.Password) {
		h.log.WarnContext(r.Context(), "invalid password attempt", "user_id", user.ID)
		response.Error(w, http.StatusUnauthorized, "Invalid email or password", "")
		return
	}

	h.log.InfoContext(r.Context(), "[OK] user logged in", "user_id", user.ID, "role", user.Role)
	h.respondSession(w, r, http.StatusOK, "Login successful", &user)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusInternalServerError, "Failed to retrieve user context", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var user models.User
	if err := h.db.WithContext(ctx).First(&user, "id = ?", claims.UserID).Error; err != nil {
		response.Error(w, http.StatusNotFound, "User not found", "")
		return
	}
	response.Success(w, http.StatusOK, "User profile fetched", user)
}

func (h *Handler) createStaff(w http.ResponseWriter, r *http.Request) {
	var input staffRequest
	if !h.decode(w, r, &input) {
		return
	}

	user, err := h.createUser(r.Context(), input.Email, input.Password, input.Name, input.Role, input.Department)
	if err != nil {
		h.userError(w, r, err)
		return
	}

	createdBy := ""
	if creator, ok := middleware.ClaimsFromContext(r.Context()); ok {
		createdBy = creator.UserID
	}
	h.log.InfoContext(r.Context(), "[OK] staff account created",
		"user_id", user.ID,
		"role", user.Role,
		"department", user.Department,
		"created_by", createdBy,
	)
	response.Success(w, http.StatusCreated, "Account created", user)
}

// createUser is shared by registration, staff creation and the bootstrap command.
func (h *Handler) createUser(ctx context.Context, email, password, name, role, department string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	email = normalizeEmail(email)
	var count int64
	if err := h.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, errEmailTaken
	}

	hashed, err := auth.HashPassword(password, h.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:      email,
		Password:   hashed,
		Name:       strings.TrimSpace(name),
		Role:       role,
		Department: strings.TrimSpace(department),
	}
	if err := h.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errEmailTaken
		}
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	return user, nil
}

func (h *Handler) respondSession(w http.ResponseWriter, r *http.Request, code int, message string, user *models.User) {
	token, err := h.tokens.Issue(user.TokenSubject())
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to issue token", "user_id", user.ID, "error", err)
		response.Error(w, http.StatusInternalServerError, "Failed to generate token", "")
		return
	}
	response.Success(w, code, message, session{
		ID:         user.ID,
		Token:      token,
		Name:       user.Name,
		Role:       user.Role,
		Department: user.Department,
	})
}

func (h *Handler) userError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errEmailTaken) {
		h.log.WarnContext(r.Context(), "registration attempt with existing email")
		response.Error(w, http.StatusConflict, "Email already registered", "")
		return
	}
	h.log.ErrorContext(r.Context(), "failed to create user", "error", err)
	response.Error(w, http.StatusInternalServerError, "Failed to create user", "")
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", "")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation failed", err.Error())
		return false
	}
	return true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
