package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/converse-chat/converse/internal/auth"
	"github.com/converse-chat/converse/internal/cache"
	"github.com/converse-chat/converse/internal/config"
	"github.com/converse-chat/converse/internal/middleware"
	"github.com/converse-chat/converse/internal/models"
	"github.com/converse-chat/converse/internal/repository"
)

// AuthHandler implements registration, login, token refresh, logout, and the
// "who am I" endpoint. Register/login/refresh are the public routes; the
// tokens they mint are what the session middleware later verifies.
type AuthHandler struct {
	users    repository.UserRepository
	identity *cache.IdentityCache
	cfg      *config.Config
	logger   *zap.Logger
}

func NewAuthHandler(
	users repository.UserRepository,
	identity *cache.IdentityCache,
	cfg *config.Config,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:    users,
		identity: identity,
		cfg:      cfg,
		logger:   logger,
	}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type userPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func toUserPayload(u *models.User) userPayload {
	return userPayload{
		ID:    u.ID.String(),
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role,
	}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The unique index is case-sensitive, so the address is normalized once
	// here and everywhere else it is looked up.
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := h.users.GetByEmail(c.Request.Context(), email)
	if err != nil {
		h.logger.Error("check existing user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	user, err := h.users.Create(c.Request.Context(), req.Name, email, string(hash), models.RoleUser)
	if err != nil {
		// A racing duplicate slips past the pre-check and lands here.
		respondError(c, h.logger, err)
		return
	}

	if err := h.issueCookies(c, user); err != nil {
		h.logger.Error("issue tokens", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "registered",
		"user":    toUserPayload(user),
	})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		h.logger.Error("find user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	// One message for both unknown email and wrong password, so the endpoint
	// cannot be used to enumerate accounts.
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	if err := h.issueCookies(c, user); err != nil {
		h.logger.Error("issue tokens", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "logged in",
		"user":    toUserPayload(user),
	})
}

// Refresh handles POST /api/auth/refresh. It reads the refresh cookie,
// verifies it, and rotates both cookies. Refresh tokens are stateless; the
// old pair simply ages out.
func (h *AuthHandler) Refresh(c *gin.Context) {
	tokenString, err := c.Cookie(middleware.RefreshCookieName)
	if err != nil || tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing refresh token"})
		return
	}

	claims, err := auth.ParseRefreshToken(tokenString, h.cfg.RefreshTokenSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("load user for refresh", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}

	if err := h.issueCookies(c, user); err != nil {
		h.logger.Error("issue tokens", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "refreshed",
		"user":    toUserPayload(user),
	})
}

// Logout handles POST /api/auth/logout by expiring both cookies. The tokens
// themselves stay valid until expiry (no revocation list); logout is a
// client-side transition.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.setCookie(c, middleware.AccessCookieName, "", -1)
	h.setCookie(c, middleware.RefreshCookieName, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me handles GET /api/auth/me. Reads through the identity cache; the store
// is only hit on a miss.
func (h *AuthHandler) Me(c *gin.Context) {
	userID := middleware.GetUserID(c)

	if cached := h.identity.Get(c.Request.Context(), userID); cached != nil {
		c.JSON(http.StatusOK, toUserPayload(cached))
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("load user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	h.identity.Set(c.Request.Context(), user)
	c.JSON(http.StatusOK, toUserPayload(user))
}

func (h *AuthHandler) issueCookies(c *gin.Context, user *models.User) error {
	access, err := auth.GenerateAccessToken(user.ID, user.Role, user.Name,
		h.cfg.AccessTokenSecret, h.cfg.AccessTokenTTL)
	if err != nil {
		return err
	}
	refresh, err := auth.GenerateRefreshToken(user.ID,
		h.cfg.RefreshTokenSecret, h.cfg.RefreshTokenTTL)
	if err != nil {
		return err
	}

	h.setCookie(c, middleware.AccessCookieName, access, int(h.cfg.AccessTokenTTL.Seconds()))
	h.setCookie(c, middleware.RefreshCookieName, refresh, int(h.cfg.RefreshTokenTTL.Seconds()))
	return nil
}

// setCookie applies the environment-dependent cookie policy: Secure and
// SameSite=None in production (the SPA lives on a different origin), Lax in
// development so plain http works.
func (h *AuthHandler) setCookie(c *gin.Context, name, value string, maxAge int) {
	if h.cfg.IsProduction() {
		c.SetSameSite(http.SameSiteNoneMode)
	} else {
		c.SetSameSite(http.SameSiteLaxMode)
	}
	c.SetCookie(name, value, maxAge, "/", "", h.cfg.IsProduction(), true)
}
