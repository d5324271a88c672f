package main

import (
	"github.com/alecthomas/kong"
	"gorm.io/gorm"
)

type Context struct {
	Debug bool

	Dialector gorm.Dialector
	gorm.Config
}

var cli struct {
	Debug bool   `help:"Enable debug mode."`
	DSN   string `required:"" help:"data source name of the database"`

	Serve         ServeCmd         `cmd:"" help:"Serve the pod's web server."`
	AutoMigrate   AutoMigrateCmd   `cmd:"" help:"Automigrate the database."`
	CreateAccount CreateAccountCmd `cmd:"" help:"Create the pod's server account."`
	Follow        FollowCmd        `cmd:"" help:"Ask this pod to follow other pods."`
	Jobs          JobsCmd          `cmd:"" help:"Show job queue statistics."`
}

func main() {
	ctx := kong.Parse(&cli)
	err := ctx.Run(&Context{
		Debug:     cli.Debug,
		Dialector: newDialector(cli.DSN),
	})
	ctx.FatalIfErrorf(err)
}
