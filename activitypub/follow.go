package activitypub

import (
	"context"
	"errors"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/vidpod/vidpod/models"
)

// followTxAttempts bounds the serializable-transaction retries per host.
const followTxAttempts = 5

// RequestFollow asks the pods at hosts to let from follow them. Each host
// is handled independently and concurrently; a host that cannot be resolved
// or written is logged and skipped, never failing the overall request.
// RequestFollow returns once every host has settled.
func RequestFollow(ctx context.Context, env *models.Env, from *models.Account, hosts []string) error {
	fetcher := NewRemoteAccountFetcher(from)
	g, ctx := errgroup.WithContext(ctx)
	for _, host := range hosts {
		host := host
		g.Go(func() error {
			if err := followHost(ctx, env, fetcher, from, host); err != nil {
				env.Log().Warn("cannot follow pod",
					slog.String("host", host),
					slog.String("error", err.Error()))
			}
			// per-host failures are isolated, so never an error here
			return nil
		})
	}
	return g.Wait()
}

// followHost resolves the server account of one host and records the
// follow. The target account, the relationship row and the Follow delivery
// job all commit in one serializable transaction.
func followHost(ctx context.Context, env *models.Env, fetcher *RemoteAccountFetcher, from *models.Account, host string) error {
	target, err := models.NewAccounts(env.DB).FindByNameAndHost(models.ServerAccountName, host)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		target, err = fetcher.Fetch(ctx, models.ServerAccountName, host)
	}
	if err != nil {
		return err
	}

	return models.WithRetry(env.DB, followTxAttempts, func(tx *gorm.DB) error {
		// re-resolve inside the transaction: each retry starts from a
		// fresh read, never from state mutated by an aborted attempt
		stored, err := models.NewAccounts(tx).FindByNameAndHost(target.Name, target.Host)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(target).Error; err != nil {
				return err
			}
			stored = target
		case err != nil:
			return err
		}

		rel, created, err := models.NewRelationships(tx).FindOrCreate(from, stored)
		if err != nil {
			return err
		}
		// only a genuinely new pending relationship is announced; an
		// existing row means a follow is already in flight or settled
		if created && rel.State == models.FollowStatePending {
			_, err = sendFollow(tx, from, stored)
			return err
		}
		return nil
	})
}
