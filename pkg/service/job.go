package service

import "context"

// Job is a one-shot runnable invoked by the job runner, e.g. the
// scheduled campaign scan or the stats sweep.
type Job interface {
	Init(ctx context.Context) error
	Run(ctx context.Context) error
	CleanUp(ctx context.Context) error
}
