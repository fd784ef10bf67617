package offload

import (
	"github.com/golang/glog"

	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
)

// kernelExecutionRule implements KernelExecutionRule:
// on a kernel enter, pair it with its launch-enter on the host (the head
// of that device stream's launch queue) via a cross-stream edge, and stash
// the launch-enter ref on the kernel-enter's payload for DeviceIdleRule.
type kernelExecutionRule struct{}

func (r *kernelExecutionRule) Name() string  { return "KernelExecutionRule" }
func (r *kernelExecutionRule) Priority() int { return priorityKernelExecution }

func (r *kernelExecutionRule) Apply(e *engine.Engine, n graph.NodeRef) bool {
	node := e.Graph.Node(n)
	if node.Function != graph.FuncOffloadKernel || !node.IsEnter() {
		return false
	}

	es, ok := e.Streams.Get(node.Stream)
	if !ok || es.Dev == nil {
		glog.Warningf("offload: KernelExecutionRule: stream %d is not a device stream", node.Stream)
		return false
	}

	launchEnter, ok := es.Dev.DequeueLaunch()
	if !ok {
		glog.Warningf("offload: KernelExecutionRule: no pending launch for kernel %d on stream %d", n, node.Stream)
		return false
	}

	e.Graph.AddEdge(launchEnter, n, graph.CUDA, false)
	node.SetPayload(launchEnter)
	e.Stats.Inc(engine.StatOffloadKernelExec)
	return true
}
