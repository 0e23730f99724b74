package resource

// State is a step of the controller lifecycle:
//
//	Created → Initializing → DataReady → Starting → Probing → Running → Stopping → Stopped
//
// Failed is terminal and is reached from Initializing, Starting or Probing.
type State int

const (
	Created State = iota
	Initializing
	DataReady
	Starting
	Probing
	Running
	Stopping
	Stopped
	Failed
)

var stateNames = [...]string{
	Created:      "created",
	Initializing: "initializing",
	DataReady:    "data-ready",
	Starting:     "starting",
	Probing:      "probing",
	Running:      "running",
	Stopping:     "stopping",
	Stopped:      "stopped",
	Failed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// terminal states need no teardown
func (s State) terminal() bool {
	return s == Stopped || s == Failed
}
