package activitypub

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-json-experiment/json"
	"gorm.io/gorm"

	"github.com/vidpod/vidpod/internal/httpx"
	"github.com/vidpod/vidpod/models"
)

type Env struct {
	*models.Env
}

// InboxCreate handles activities POSTed to this pod's shared inbox.
// Receivers apply activities idempotently: the same activity arriving twice
// is a no-op, which is what lets senders deliver at-least-once.
func InboxCreate(env *Env, w http.ResponseWriter, r *http.Request) error {
	var activity struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		Actor  string `json:"actor"`
		Object any    `json:"object"`
	}
	if err := json.UnmarshalFull(r.Body, &activity); err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}

	switch activity.Type {
	case AcceptType:
		return inboxAccept(env, w, activity.Actor)
	case RejectType:
		return inboxReject(env, w, activity.Actor)
	case FollowType:
		return inboxFollow(r.Context(), env, w, activity.Actor, map[string]any{
			"type":   activity.Type,
			"id":     activity.ID,
			"actor":  activity.Actor,
			"object": activity.Object,
		})
	default:
		// other activity types are not part of the follow protocol;
		// acknowledge them so well-behaved peers stop retrying
		w.WriteHeader(http.StatusAccepted)
		return nil
	}
}

// inboxAccept marks our follow of the sending pod as accepted.
func inboxAccept(env *Env, w http.ResponseWriter, actorURL string) error {
	server, err := models.NewAccounts(env.DB).ServerAccount()
	if err != nil {
		return err
	}
	remote, err := models.NewAccounts(env.DB).FindByURL(actorURL)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, fmt.Errorf("accept from unknown actor %s", actorURL))
	}
	err = models.WithRetry(env.DB, followTxAttempts, func(tx *gorm.DB) error {
		return models.NewRelationships(tx).Accept(server, remote)
	})
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// inboxReject marks our follow of the sending pod as rejected.
func inboxReject(env *Env, w http.ResponseWriter, actorURL string) error {
	server, err := models.NewAccounts(env.DB).ServerAccount()
	if err != nil {
		return err
	}
	remote, err := models.NewAccounts(env.DB).FindByURL(actorURL)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, fmt.Errorf("reject from unknown actor %s", actorURL))
	}
	err = models.WithRetry(env.DB, followTxAttempts, func(tx *gorm.DB) error {
		return models.NewRelationships(tx).Reject(server, remote)
	})
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// inboxFollow records the sending pod as a follower of this pod and
// answers with a signed Accept. Pods accept follows automatically.
func inboxFollow(ctx context.Context, env *Env, w http.ResponseWriter, actorURL string, followActivity map[string]any) error {
	server, err := models.NewAccounts(env.DB).ServerAccount()
	if err != nil {
		return err
	}

	remote, err := models.NewAccounts(env.DB).FindByURL(actorURL)
	if err == gorm.ErrRecordNotFound {
		remote, err = NewRemoteAccountFetcher(server).FetchURL(ctx, actorURL)
	}
	if err != nil {
		return httpx.Error(http.StatusBadRequest, fmt.Errorf("follow from unresolvable actor %s: %w", actorURL, err))
	}

	err = models.WithRetry(env.DB, followTxAttempts, func(tx *gorm.DB) error {
		stored, err := models.NewAccounts(tx).FindByURL(remote.URL)
		switch {
		case err == gorm.ErrRecordNotFound:
			if err := tx.Create(remote).Error; err != nil {
				return err
			}
			stored = remote
		case err != nil:
			return err
		}

		if _, _, err := models.NewRelationships(tx).FindOrCreate(stored, server); err != nil {
			return err
		}
		if err := models.NewRelationships(tx).Accept(stored, server); err != nil {
			return err
		}

		accept, err := NewBuilder(tx).Accept(server, stored, followActivity)
		if err != nil {
			return err
		}
		_, err = models.NewJobs(tx).Enqueue(tx, models.JobKindActivityBroadcast, deliveryTo(stored, accept))
		return err
	})
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
