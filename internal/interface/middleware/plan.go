package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumenchat/lumenchat-backend/internal/application"
	"github.com/lumenchat/lumenchat-backend/pkg/response"
)

// PlanCheck gates a route on the user's plan state. Denials carry the
// current plan status so the client can route to the paywall. A failed
// expiry write is a 500, not an allow.
func PlanCheck(plans *application.PlanService) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := UserFromCtx(c)
		if !ok {
			resp := response.Error[any](c, http.StatusUnauthorized, "missing authenticated user", nil)
			c.AbortWithStatusJSON(resp.Status, resp)
			return
		}

		decision, err := plans.CheckAccess(c.Request.Context(), u)
		if err != nil {
			resp := response.Error[any](c, http.StatusInternalServerError, "plan check failed", nil)
			c.AbortWithStatusJSON(resp.Status, resp)
			return
		}
		if !decision.Allowed {
			resp := response.Error[any](c, http.StatusForbidden, decision.Reason, gin.H{
				"planStatus": string(decision.Status),
			})
			c.AbortWithStatusJSON(resp.Status, resp)
			return
		}
		c.Next()
	}
}
