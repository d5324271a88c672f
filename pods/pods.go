// Package pods implements the federation management API: asking this pod
// to follow others, and listing who it follows and who follows it.
package pods

import (
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/vidpod/vidpod/internal/httpx"
	"github.com/vidpod/vidpod/models"
)

type Env struct {
	*models.Env
}

// authenticate resolves the request's bearer token and checks that it
// grants the required permission.
func (env *Env) authenticate(r *http.Request, required models.Permission) (*models.Token, error) {
	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	token, err := models.NewTokens(env.DB).FindByAccessToken(bearer)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, httpx.Error(http.StatusUnauthorized, fmt.Errorf("invalid bearer token"))
		}
		return nil, err
	}
	if !token.Allows(required) {
		return nil, httpx.Error(http.StatusForbidden, fmt.Errorf("token lacks required permission"))
	}
	return token, nil
}
