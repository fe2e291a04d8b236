package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/electrovision/storefront/internal/config"
	"github.com/electrovision/storefront/internal/user"
)

const userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type googleProfile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type Handlers struct {
	users       user.Repository
	oauth       *oauth2.Config
	frontendURL string
}

func NewHandlers(cfg config.Config, users user.Repository) *Handlers {
	return &Handlers{
		users: users,
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"profile", "email"},
			Endpoint:     google.Endpoint,
		},
		frontendURL: cfg.FrontendBaseURL,
	}
}

func (h *Handlers) Register(r *gin.Engine) {
	r.GET("/auth/google", h.login)
	r.GET("/auth/google/callback", h.callback)
	r.POST("/auth/logout", h.logout)
	r.GET("/api/me", h.me)
}

func (h *Handlers) login(c *gin.Context) {
	state := uuid.NewString()
	sess := sessions.Default(c)
	sess.Set(sessionStateKey, state)
	if err := sess.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to start login."})
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, h.oauth.AuthCodeURL(state))
}

func (h *Handlers) callback(c *gin.Context) {
	sess := sessions.Default(c)
	wantState, _ := sess.Get(sessionStateKey).(string)
	sess.Delete(sessionStateKey)

	if wantState == "" || c.Query("state") != wantState {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid OAuth state."})
		return
	}

	ctx := c.Request.Context()
	token, err := h.oauth.Exchange(ctx, c.Query("code"))
	if err != nil {
		log.Error().Err(err).Msg("oauth code exchange failed")
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Google login failed."})
		return
	}

	profile, err := fetchProfile(ctx, h.oauth, token)
	if err != nil {
		log.Error().Err(err).Msg("fetching google profile failed")
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Google login failed."})
		return
	}

	u, err := h.users.UpsertByGoogleID(ctx, &user.User{
		Username:  profile.Name,
		Email:     profile.Email,
		GoogleID:  profile.ID,
		AvatarURL: profile.Picture,
	})
	if err != nil {
		log.Error().Err(err).Msg("user upsert failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Login failed."})
		return
	}

	sess.Set(sessionUserKey, u.ID)
	if err := sess.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Login failed."})
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, h.frontendURL)
}

func fetchProfile(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token) (*googleProfile, error) {
	res, err := cfg.Client(ctx, token).Get(userInfoURL)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status %s", res.Status)
	}
	var p googleProfile
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.New("userinfo response missing id")
	}
	return &p, nil
}

func (h *Handlers) logout(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	sess.Options(sessions.Options{Path: "/", MaxAge: -1})
	_ = sess.Save()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out."})
}

func (h *Handlers) me(c *gin.Context) {
	id, ok := UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User is not authenticated."})
		return
	}
	u, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User is not authenticated."})
		return
	}
	c.JSON(http.StatusOK, u)
}
