package main

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/vidpod/vidpod/models"
)

type JobsCmd struct {
}

func (j *JobsCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}
	stats, err := models.NewJobs(db).Stats()
	if err != nil {
		return err
	}
	for _, state := range []models.JobState{
		models.JobStatePending,
		models.JobStateProcessing,
		models.JobStateSuccess,
		models.JobStateError,
	} {
		fmt.Printf("%-12s %d\n", state, stats[state])
	}
	return nil
}
