package queue

import (
	"github.com/hibiken/asynq"
)

// HandlersRegistry collects the worker binary's task handlers before the
// asynq server starts. Registering the same task type twice panics, which
// is the behavior we want at startup.
type HandlersRegistry struct {
	mux   *asynq.ServeMux
	types []string
}

func NewHandlersRegistry() *HandlersRegistry {
	return &HandlersRegistry{mux: asynq.NewServeMux()}
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
	r.types = append(r.types, taskType)
}

// TaskTypes lists everything registered so far, in registration order.
func (r *HandlersRegistry) TaskTypes() []string {
	return r.types
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}
