package upload

import (
	"github.com/kdsmith18542/clickfit/observability"
)

// observer returns the process-wide observer at call time, so an Observer
// installed after the Processor was built still receives events.
func observer() observability.Observer {
	return observability.GetObserver()
}
