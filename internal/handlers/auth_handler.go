package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pwanimeetup/referral/internal/auth"
	"github.com/pwanimeetup/referral/internal/config"
	"github.com/pwanimeetup/referral/internal/metrics"
)

// AuthHandler serves admin login/logout and owns the session cookie. The
// token itself comes from the authenticator; everything cookie-shaped is a
// boundary concern kept here.
type AuthHandler struct {
	authenticator *auth.Authenticator
	session       config.SessionConfig
	secureCookie  bool
	log           *logrus.Logger
}

// NewAuthHandler constructs an AuthHandler. secureCookie should be true in
// production so the cookie is never sent over plain HTTP.
func NewAuthHandler(authenticator *auth.Authenticator, session config.SessionConfig, secureCookie bool, log *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		authenticator: authenticator,
		session:       session,
		secureCookie:  secureCookie,
		log:           log,
	}
}

type loginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Login validates credentials and sets the session cookie. Unknown users and
// wrong passwords get the same message.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if err := c.ShouldBind(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter username and password."})
		return
	}

	token, err := h.authenticator.Login(c.Request.Context(), body.Username, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingFields):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter username and password."})
		case errors.Is(err, auth.ErrInvalidCredentials):
			metrics.RecordAdminLogin("rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password."})
		default:
			h.log.WithError(err).Error("Login failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong. Please try again."})
		}
		return
	}

	metrics.RecordAdminLogin("success")
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.session.CookieName, token, int(h.session.MaxAge.Seconds()), "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.session.CookieName, "", -1, "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RequireAdmin is the cookie-auth middleware for the management surface. Any
// verification failure denies without detail.
func (h *AuthHandler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(h.session.CookieName)
		if err != nil || !h.authenticator.Authorize(c.Request.Context(), token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
