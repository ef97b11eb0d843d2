package http

import (
	"errors"
	"fmt"

	"github.com/dkeye/Pairline/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const sessionUserKey = "uid"

var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves the identity of an incoming request. The hub
// trusts whatever it returns.
type Authenticator interface {
	Authenticate(c *gin.Context) (domain.UserID, error)
}

// SessionAuthenticator reads the identity from the signed session cookie.
type SessionAuthenticator struct{}

func (SessionAuthenticator) Authenticate(c *gin.Context) (domain.UserID, error) {
	raw, ok := sessions.Default(c).Get(sessionUserKey).(string)
	if !ok || raw == "" {
		return "", ErrUnauthenticated
	}
	id, err := domain.ParseUserID(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return id, nil
}
