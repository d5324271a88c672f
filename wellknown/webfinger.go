// Package wellknown serves the discovery endpoints other pods rely on.
package wellknown

import (
	"fmt"
	"net/http"

	"gorm.io/gorm"

	"github.com/vidpod/vidpod/internal/httpx"
	"github.com/vidpod/vidpod/internal/to"
	"github.com/vidpod/vidpod/internal/webfinger"
	"github.com/vidpod/vidpod/models"
)

type Env struct {
	*models.Env
}

// WebfingerShow answers webfinger queries for accounts hosted on this pod.
func WebfingerShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		return httpx.Error(http.StatusBadRequest, fmt.Errorf("resource parameter is required"))
	}
	acct, err := webfinger.Parse(resource)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}
	var account models.Account
	if err := env.DB.Where("name = ? AND host = ? AND local = ?", acct.Name, acct.Host, true).Take(&account).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return httpx.Error(http.StatusNotFound, err)
		}
		return err
	}
	return to.JSON(w, webfinger.Webfinger{
		Subject: acct.String(),
		Aliases: []string{account.URL},
		Links: []webfinger.Link{
			{
				Rel:  "self",
				Type: "application/activity+json",
				Href: account.URL,
			},
		},
	})
}
