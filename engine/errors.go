package engine

import (
	"fmt"

	"github.com/flowgraph-io/flowgraph/types"
)

// NodeExecutionError wraps any failure surfaced from one node execution
// with the node id, the phase that failed, and how many attempts were
// spent. The cause chain stays intact for errors.As.
type NodeExecutionError struct {
	NodeID   string
	Phase    types.Phase
	Attempts int
	Cause    error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("[%s] node %q failed during %s after %d attempt(s): %v",
		types.ErrNodeExecution, e.NodeID, e.Phase, e.Attempts, e.Cause)
}

func (e *NodeExecutionError) Unwrap() error { return e.Cause }

func nodeErr(nodeID string, phase types.Phase, attempts int, cause error) *NodeExecutionError {
	return &NodeExecutionError{NodeID: nodeID, Phase: phase, Attempts: attempts, Cause: cause}
}
