package main

import (
	"context"
	"os"

	"golang.org/x/exp/slog"
	"gorm.io/gorm"

	"github.com/vidpod/vidpod/activitypub"
	"github.com/vidpod/vidpod/models"
)

type FollowCmd struct {
	Hosts []string `arg:"" required:"" help:"hosts to follow"`
}

// Run records pending follows towards the given hosts and enqueues the
// Follow activities. The activities are delivered by a running server's
// job scheduler, not by this command.
func (f *FollowCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}
	env := &models.Env{
		DB:     db,
		Logger: slog.New(slog.NewTextHandler(os.Stderr)),
	}
	server, err := models.NewAccounts(db).ServerAccount()
	if err != nil {
		return err
	}
	return activitypub.RequestFollow(context.Background(), env, server, f.Hosts)
}
