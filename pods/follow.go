package pods

import (
	"fmt"
	"net/http"

	"github.com/vidpod/vidpod/activitypub"
	"github.com/vidpod/vidpod/internal/httpx"
	"github.com/vidpod/vidpod/models"
)

// FollowCreate asks this pod to follow one or more remote pods. Each host
// is resolved and recorded independently; a host that cannot be reached
// does not abort the others.
func FollowCreate(env *Env, w http.ResponseWriter, r *http.Request) error {
	if _, err := env.authenticate(r, models.PermissionManageFederation); err != nil {
		return err
	}

	var params struct {
		Hosts []string `json:"hosts"`
	}
	if err := httpx.Params(r, &params); err != nil {
		return err
	}
	if len(params.Hosts) == 0 {
		return httpx.Error(http.StatusBadRequest, fmt.Errorf("no hosts given"))
	}
	for _, host := range params.Hosts {
		if host == "" {
			return httpx.Error(http.StatusBadRequest, fmt.Errorf("empty host"))
		}
	}

	server, err := models.NewAccounts(env.DB).ServerAccount()
	if err != nil {
		return err
	}
	if err := activitypub.RequestFollow(r.Context(), env.Env, server, params.Hosts); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
