package scheduler

import (
	"github.com/mattjoyce/lanes/internal/queue"
)

//go:generate mockgen -destination=mocks/mock_queue.go -package=mocks github.com/mattjoyce/lanes/internal/scheduler QueueService

// QueueService defines the queue operations used by the scheduler.
// registry.Service implements it.
type QueueService interface {
	Push(owner, id string, args []any) (*queue.Task, error)
	Stats(owner, id string) (queue.Stats, error)
}
