// Package offload implements the CUDA/Offload paradigm rule set (C4.2):
// KernelExecutionRule pairs a device kernel with its host-side launch;
// DeviceIdleRule attributes device idle time backward onto the host
// stream that should have kept it busy; LateSyncRule detects a host
// synchronization that arrived after its device work had already
// finished and inserts a synthetic wait-state region for the gap.
package offload

import (
	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/graph"
)

// Rule priorities: KernelExecutionRule must run before DeviceIdleRule on a
// kernel enter so the idle rule can read the launch-edge payload
// KernelExecutionRule attaches; LateSyncRule is independent (a different
// trigger shape: host-side sync leave, not device kernel enter/leave).
const (
	priorityKernelExecution = 30
	priorityDeviceIdle      = 20
	priorityLateSync        = 20
)

// Register attaches the offload attribute handler and all offload rules to e.
func Register(e *engine.Engine) {
	h := &handler{}
	e.RegisterAttributeHandler(h.onEvent)
	e.RegisterRule(&kernelExecutionRule{})
	e.RegisterRule(&deviceIdleRule{})
	e.RegisterRule(&lateSyncRule{})
}

// isDeviceFunc reports whether f classifies its node as living on a
// CUDA/Offload device stream, i.e. f is one of the device-side function kinds.
func isDeviceFunc(f graph.FunctionKind) bool {
	switch f {
	case graph.FuncOffloadKernel, graph.FuncOffloadEventRecord,
		graph.FuncOffloadEventQuery, graph.FuncOffloadStreamWait:
		return true
	default:
		return false
	}
}
