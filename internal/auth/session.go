package auth

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const (
	sessionName    = "storefront_session"
	sessionUserKey = "user_id"
	sessionStateKey = "oauth_state"
)

// SessionMiddleware installs the cookie-backed session store. The cookie
// lives for 24 hours, matching the session the storefront UI expects.
func SessionMiddleware(secret string) gin.HandlerFunc {
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   24 * 60 * 60,
		HttpOnly: true,
	})
	return sessions.Sessions(sessionName, store)
}

// UserID returns the authenticated user's id from the session, if any.
func UserID(c *gin.Context) (int64, bool) {
	sess := sessions.Default(c)
	id, ok := sess.Get(sessionUserKey).(int64)
	return id, ok
}

// RequireUser rejects unauthenticated requests before the handler runs.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserID(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User is not authenticated."})
			return
		}
		c.Next()
	}
}
