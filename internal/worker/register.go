package worker

import (
	"github.com/ahrav/go-recall/internal/activity"
	"github.com/ahrav/go-recall/internal/workflow"
	pkgactivity "github.com/ahrav/go-recall/pkg/activity"
)

// Registry is the registration surface shared by a Temporal worker and the
// workflow test environment.
type Registry interface {
	RegisterWorkflow(w any)
	RegisterActivity(a any)
}

// RegisterAll registers the evaluation workflow and the activities backed
// by c. Call once during worker startup, before Start.
func RegisterAll(r Registry, c *Components) {
	acts := activity.NewActivities(pkgactivity.NewBaseActivities(c.EventSink), c.Processor, c.Writer)

	r.RegisterWorkflow(workflow.EvaluationWorkflow)

	// Method values only; the embedded base helpers are not activities.
	r.RegisterActivity(acts.ProcessItem)
	r.RegisterActivity(acts.WriteCheckpoint)
}
