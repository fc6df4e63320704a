// Package inspect captures the observable state of a tree for debugging:
// point-in-time snapshots, a styled text rendering and an interactive
// terminal watcher.
package inspect

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/joeycumines/behave/internal/blackboard"
	"github.com/joeycumines/behave/internal/tree"
)

// NodeInfo describes one node at capture time.
type NodeInfo struct {
	ID         int      `json:"id"`
	Parent     int      `json:"parent"`
	Depth      int      `json:"depth"`
	Name       string   `json:"name"`
	Label      string   `json:"label,omitempty"`
	Kind       string   `json:"kind"`
	State      string   `json:"state"`
	LastResult bool     `json:"lastResult"`
	TaskResult string   `json:"taskResult,omitempty"`
	Aborts     string   `json:"aborts,omitempty"`
	Observing  bool     `json:"observing,omitempty"`
	Keys       []string `json:"keys,omitempty"`
}

// Active reports whether the node was running.
func (n NodeInfo) Active() bool { return n.State == tree.StateActive.String() }

// Stats are the resource counters of a tree.
type Stats struct {
	Timers              int `json:"timers"`
	TimerPool           int `json:"timerPool"`
	UpdateObservers     int `json:"updateObservers"`
	BlackboardKeys      int `json:"blackboardKeys"`
	BlackboardObservers int `json:"blackboardObservers"`
	Subscribes          int `json:"subscribes"`
	Unsubscribes        int `json:"unsubscribes"`
	Notifications       int `json:"notifications"`
}

// Snapshot is the state of a whole tree at one tick.
type Snapshot struct {
	Instance   string         `json:"instance"`
	Tick       uint64         `json:"tick"`
	Closed     bool           `json:"closed"`
	Nodes      []NodeInfo     `json:"nodes"`
	Blackboard map[string]any `json:"blackboard"`
	Stats      Stats          `json:"stats"`
}

// Capture snapshots root. Blackboard objects are recorded by their printed
// form, so that the snapshot stays serializable.
func Capture(root *tree.Root) Snapshot {
	nodes := root.Nodes()
	s := Snapshot{
		Instance:   root.InstanceID().String(),
		Tick:       root.Clock().Now(),
		Closed:     root.Closed(),
		Nodes:      make([]NodeInfo, len(nodes)),
		Blackboard: make(map[string]any, root.Blackboard().Len()),
		Stats:      CaptureStats(root),
	}
	for i, n := range nodes {
		info := NodeInfo{
			ID:         n.ID(),
			Parent:     -1,
			Name:       n.Name(),
			Label:      n.Label(),
			Kind:       n.Kind().String(),
			State:      n.CurrentState().String(),
			LastResult: n.LastResult(),
		}
		if p := n.Parent(); p != nil {
			info.Parent = p.ID()
			info.Depth = s.Nodes[p.ID()].Depth + 1
		}
		switch v := n.(type) {
		case *tree.Task:
			info.TaskResult = v.TaskResult().String()
		case tree.ObservingDecorator:
			info.Aborts = v.EffectiveAborts().String()
			info.Observing = v.Observing()
			info.Keys = v.Keys()
		}
		s.Nodes[i] = info
	}
	for k, v := range root.Blackboard().Snapshot() {
		if blackboard.NewValue(v).Kind() == blackboard.KindObject {
			v = fmt.Sprint(v)
		}
		s.Blackboard[k] = v
	}
	return s
}

// CaptureStats returns the resource counters of root.
func CaptureStats(root *tree.Root) Stats {
	bb, clk := root.Blackboard(), root.Clock()
	st := bb.Stats()
	return Stats{
		Timers:              clk.NumTimers(),
		TimerPool:           clk.DebugPoolSize(),
		UpdateObservers:     clk.NumUpdateObservers(),
		BlackboardKeys:      bb.Len(),
		BlackboardObservers: bb.NumObservers(),
		Subscribes:          st.Subscribes,
		Unsubscribes:        st.Unsubscribes,
		Notifications:       st.Notifications,
	}
}

// JSON encodes the snapshot, indented.
func (s Snapshot) JSON() ([]byte, error) { return json.MarshalIndent(s, "", "  ") }

// Active returns the ids of the running nodes.
func (s Snapshot) Active() []int {
	var ids []int
	for _, n := range s.Nodes {
		if n.Active() {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Keys returns the blackboard keys, sorted.
func (s Snapshot) Keys() []string { return slices.Sorted(maps.Keys(s.Blackboard)) }
