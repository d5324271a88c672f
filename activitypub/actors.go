package activitypub

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/vidpod/vidpod/internal/httpx"
	"github.com/vidpod/vidpod/internal/to"
	"github.com/vidpod/vidpod/models"
)

// ActorShow serves the ActivityPub descriptor of a local account, the
// document peers fetch during discovery.
func ActorShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	name := chi.URLParam(r, "name")
	var account models.Account
	if err := env.DB.Where("name = ? AND local = ?", name, true).Take(&account).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return httpx.Error(http.StatusNotFound, err)
		}
		return err
	}
	acct := account.Acct()
	return to.JSON(w, map[string]any{
		"@context":          activityContext(),
		"id":                account.URL,
		"type":              "Application",
		"preferredUsername": account.Name,
		"name":              account.DisplayName,
		"inbox":             account.InboxURL,
		"followers":         acct.Followers(),
		"following":         acct.Following(),
		"endpoints": map[string]any{
			"sharedInbox": account.SharedInboxURL,
		},
		"publicKey": map[string]any{
			"id":           account.PublicKeyID(),
			"owner":        account.URL,
			"publicKeyPem": string(account.PublicKey),
		},
	})
}
