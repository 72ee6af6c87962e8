package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SecretHeader carries the shared secret on every render request.
const SecretHeader = "X-SSR-Secret"

// AuthConfig configures SecretAuth.
type AuthConfig struct {
	Secret string
	// DeprecatedSecret is still accepted while callers rotate to Secret.
	DeprecatedSecret string
	// Enforce rejects bad secrets. When false mismatches are only logged.
	Enforce bool
}

// SecretAuth checks SecretHeader against the configured secrets.
func SecretAuth(cfg AuthConfig, logger *logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.NewNop()
	}
	return func(c *gin.Context) {
		got := c.GetHeader(SecretHeader)
		ok, deprecated := checkSecret(cfg, got)
		switch {
		case ok && deprecated:
			RequestLogger(c, logger).Warn("request authenticated with deprecated secret")
		case ok:
		case !cfg.Enforce:
			RequestLogger(c, logger).Debug("secret check skipped outside production",
				zap.Bool("secret_present", got != ""))
		default:
			RequestLogger(c, logger).Warn("rejected request with invalid secret",
				zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid secret"})
			return
		}
		c.Next()
	}
}

// checkSecret compares in constant time. An empty configured secret never
// matches.
func checkSecret(cfg AuthConfig, got string) (ok, deprecated bool) {
	if equal(cfg.Secret, got) {
		return true, false
	}
	if equal(cfg.DeprecatedSecret, got) {
		return true, true
	}
	return false, false
}

func equal(want, got string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
