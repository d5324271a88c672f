package pods

import (
	"net/http"

	"github.com/vidpod/vidpod/internal/httpx"
	"github.com/vidpod/vidpod/internal/to"
	"github.com/vidpod/vidpod/models"
)

// FollowersIndex lists the pods following this pod.
func FollowersIndex(env *Env, w http.ResponseWriter, r *http.Request) error {
	if _, err := env.authenticate(r, models.PermissionManageFederation); err != nil {
		return err
	}
	var page models.Pagination
	if err := httpx.Params(r, &page); err != nil {
		return err
	}

	server, err := models.NewAccounts(env.DB).ServerAccount()
	if err != nil {
		return err
	}
	rels, total, err := models.NewRelationships(env.DB).Followers(server, &page)
	if err != nil {
		return err
	}
	data := make([]pod, 0, len(rels))
	for i := range rels {
		data = append(data, serialisePod(&rels[i], rels[i].Account))
	}
	return to.JSON(w, map[string]any{
		"data":  data,
		"total": total,
	})
}
