package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lumenchat/lumenchat-backend/internal/application"
	"github.com/lumenchat/lumenchat-backend/internal/domain/entity"
	"github.com/lumenchat/lumenchat-backend/pkg/helpers"
	"github.com/lumenchat/lumenchat-backend/pkg/response"
)

const (
	// CtxUserKey holds the *entity.User for the authenticated identity.
	CtxUserKey = "user"
	// CtxUserIDKey holds the user's record ID.
	CtxUserIDKey = "userID"
)

// IdentityVerifier validates a bearer token against the identity provider.
// Satisfied by *helpers.JWKSVerifier.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*helpers.IdentityClaims, error)
}

// Auth validates the Authorization bearer token and loads (creating on first
// sight) the user record for the identity. Handlers downstream read the
// record from the context.
func Auth(verifier IdentityVerifier, users *application.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			resp := response.Error[any](c, http.StatusUnauthorized, "missing bearer token", nil)
			c.AbortWithStatusJSON(resp.Status, resp)
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			resp := response.Error[any](c, http.StatusUnauthorized, "invalid bearer token", nil)
			c.AbortWithStatusJSON(resp.Status, resp)
			return
		}

		u, err := users.Ensure(c.Request.Context(), claims.Subject, claims.Email, claims.Name)
		if err != nil {
			resp := response.Error[any](c, http.StatusInternalServerError, "failed to load user", nil)
			c.AbortWithStatusJSON(resp.Status, resp)
			return
		}

		c.Set(CtxUserKey, u)
		c.Set(CtxUserIDKey, u.ID)
		c.Next()
	}
}

// UserFromCtx returns the authenticated user placed by Auth.
func UserFromCtx(c *gin.Context) (*entity.User, bool) {
	v, ok := c.Get(CtxUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*entity.User)
	return u, ok
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
