package main

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/vidpod/vidpod/models"
)

type CreateAccountCmd struct {
	Host     string `required:"" help:"host name of this pod"`
	Email    string `required:"" help:"email address of the pod administrator"`
	Password string `required:"" help:"password of the pod administrator"`
}

// Run creates the pod's server account and an access token that grants
// the federation management permission. The token is printed once; it is
// not recoverable afterwards.
func (c *CreateAccountCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}

	account, err := models.NewAccounts(db).Create(models.ServerAccountName, c.Host, c.Email, c.Password)
	if err != nil {
		return err
	}
	token, err := models.NewTokens(db).Create(account, models.PermissionManageFederation)
	if err != nil {
		return err
	}
	fmt.Printf("created account %s\naccess token: %s\n", account.URL, token.AccessToken)
	return nil
}
