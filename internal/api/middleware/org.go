package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/pricebook/internal/logger"
)

const (
	// HeaderOrganizationID scopes every API call to one organization.
	HeaderOrganizationID = "X-Organization-ID"
	// HeaderActor names the user recorded in the activity log.
	HeaderActor = "X-Actor"

	orgKey   = "organization_id"
	actorKey = "actor"
)

// Organization rejects requests without an organization header and stores
// the organization and actor on both the Gin and the logger context.
func Organization() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := strings.TrimSpace(c.GetHeader(HeaderOrganizationID))
		if orgID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "Missing " + HeaderOrganizationID + " header",
			})
			return
		}
		actor := strings.TrimSpace(c.GetHeader(HeaderActor))

		ctx := logger.SetOrgID(c.Request.Context(), orgID)
		if actor != "" {
			ctx = logger.SetActor(ctx, actor)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(orgKey, orgID)
		c.Set(actorKey, actor)
		c.Next()
	}
}

// OrgID returns the organization set by Organization.
func OrgID(c *gin.Context) string {
	return c.GetString(orgKey)
}

// Actor returns the actor set by Organization, possibly empty.
func Actor(c *gin.Context) string {
	return c.GetString(actorKey)
}
