package pods

import (
	"net/http"
	"time"

	"github.com/vidpod/vidpod/internal/httpx"
	"github.com/vidpod/vidpod/internal/snowflake"
	"github.com/vidpod/vidpod/internal/to"
	"github.com/vidpod/vidpod/models"
)

type pod struct {
	ID        snowflake.ID       `json:"id"`
	Host      string             `json:"host"`
	URL       string             `json:"url"`
	State     models.FollowState `json:"state"`
	CreatedAt time.Time          `json:"createdAt"`
}

func serialisePod(rel *models.Relationship, peer *models.Account) pod {
	return pod{
		ID:        peer.ID,
		Host:      peer.Host,
		URL:       peer.URL,
		State:     rel.State,
		CreatedAt: rel.CreatedAt,
	}
}

// FollowingIndex lists the pods this pod follows.
func FollowingIndex(env *Env, w http.ResponseWriter, r *http.Request) error {
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
	rels, total, err := models.NewRelationships(env.DB).Following(server, &page)
	if err != nil {
		return err
	}
	data := make([]pod, 0, len(rels))
	for i := range rels {
		data = append(data, serialisePod(&rels[i], rels[i].Target))
	}
	return to.JSON(w, map[string]any{
		"data":  data,
		"total": total,
	})
}
