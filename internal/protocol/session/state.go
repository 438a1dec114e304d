package session

import "time"

type State int

const (
	Idle State = iota
	Sending
	Failed
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Failed:
		return "failed"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

type Path string

const (
	PathShort     Path = "short"
	PathSegmented Path = "segmented"
)

// Outcome summarizes one Send. On failure Frames counts the frames that
// were acknowledged before it.
type Outcome struct {
	Path    Path
	Bytes   int
	Frames  int
	Elapsed time.Duration
}

// Observer receives fire-and-forget notifications. Implementations must not
// block and must not call back into the Session.
type Observer interface {
	LineSent(line string)
	LineReceived(line string)
	StateChanged(from, to State)
	SendFinished(out Outcome, err error)
}

type NopObserver struct{}

func (NopObserver) LineSent(string) {}
func (NopObserver) LineReceived(string) {}
func (NopObserver) StateChanged(State, State) {}
func (NopObserver) SendFinished(Outcome, error) {}
