package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// IdentityKey is where the verified caller identity lands in the gin
// context. Authentication happens upstream; this layer only requires
// that the header is present and trusts its value.
const IdentityKey = "callerIdentity"

const identityHeader = "X-Wallet-Address"

func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.GetHeader(identityHeader)
		if wallet == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "caller identity is required in '" + identityHeader + "' header",
			})
			c.Abort()
			return
		}
		c.Set(IdentityKey, wallet)
		c.Next()
	}
}

// CallerIdentity reads the identity set by Identity().
func CallerIdentity(c *gin.Context) string {
	return c.GetString(IdentityKey)
}
