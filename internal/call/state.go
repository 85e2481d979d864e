package call

import (
	"fmt"

	"github.com/dkeye/Chatter/internal/domain"
)

// Phase is the observable call phase. Inactive and End are equivalent at
// rest; End is emitted transiently so observers can react before the state
// settles back to Inactive.
type Phase int

const (
	Inactive Phase = iota
	Calling
	Called
	Connecting
	InCall
	Busy
	Ended
)

func (p Phase) String() string {
	switch p {
	case Inactive:
		return "Inactive"
	case Calling:
		return "Calling"
	case Called:
		return "Called"
	case Connecting:
		return "Connecting"
	case InCall:
		return "InCall"
	case Busy:
		return "Busy"
	case Ended:
		return "End"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// State is what the UI layer observes. ConversationID is zero for Inactive,
// Busy and End.
type State struct {
	Phase          Phase
	ConversationID domain.ConversationID
}

func (s State) String() string {
	if s.ConversationID == 0 {
		return s.Phase.String()
	}
	return fmt.Sprintf("%s(%d)", s.Phase, int64(s.ConversationID))
}

// phase is the engine-private state superset driving signaling side effects.
// It decouples what the UI sees from which signaling step is executing.
type phase int

const (
	stInactive phase = iota
	stCalling           // local call placed, waiting for AcceptCall
	stCalled            // inbound Calling, waiting for local accept/reject
	stConnecting        // media session up, SDP exchange in flight
	stInCall            // remote answer applied
	stBusy              // reject/busy window before reverting to Inactive
)

func (p phase) active() bool { return p != stInactive && p != stBusy }

func (p phase) String() string {
	switch p {
	case stInactive:
		return "inactive"
	case stCalling:
		return "calling"
	case stCalled:
		return "called"
	case stConnecting:
		return "connecting"
	case stInCall:
		return "in_call"
	case stBusy:
		return "busy"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}
