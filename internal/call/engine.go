package call

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/dkeye/Chatter/internal/wire"
)

// Sender carries outbound frames toward the server. Implementations must be
// safe for concurrent use; the engine treats every send as fire-and-forget.
type Sender interface {
	Send(wire.Frame) error
}

type Options struct {
	// BusyDelay is the fixed window between emitting Busy and reverting to
	// Inactive after a local reject. Non-preemptable once started.
	BusyDelay time.Duration
	// RingTimeout ends an unanswered call that never reached InCall.
	// Zero disables it, matching deployed peer behavior.
	RingTimeout time.Duration
	Clock       Clock
}

const defaultBusyDelay = time.Second

// Engine owns the client-side call lifecycle. All state lives in a single
// goroutine fed by a command channel, so transitions need no locks and
// frames from one connection are processed in receipt order.
type Engine struct {
	userID domain.UserID
	sender Sender
	media  core.MediaFactory
	opts   Options

	cmds      chan func()
	done      chan struct{}
	closeOnce sync.Once

	states  chan State
	current atomic.Value

	// Everything below is owned by the loop goroutine.
	ph         phase
	cid        domain.ConversationID
	session    core.MediaSession
	iceCancel  context.CancelFunc
	pendingIce []string
	remoteSet  bool
	busyTimer  Timer
	ringTimer  Timer
}

func NewEngine(userID domain.UserID, sender Sender, media core.MediaFactory, opts Options) *Engine {
	if opts.BusyDelay <= 0 {
		opts.BusyDelay = defaultBusyDelay
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	e := &Engine{
		userID: userID,
		sender: sender,
		media:  media,
		opts:   opts,
		cmds:   make(chan func(), 64),
		done:   make(chan struct{}),
		states: make(chan State, 32),
	}
	e.current.Store(State{})
	go e.loop()
	return e
}

// MakeCall places a call for the conversation. Ignored while another call is
// active: one call per client.
func (e *Engine) MakeCall(cid domain.ConversationID) {
	e.do(func() { e.makeCall(cid) })
}

// AcceptCall answers an incoming call. accept=false sends Busy and reverts
// to Inactive after the busy delay.
func (e *Engine) AcceptCall(cid domain.ConversationID, accept bool) {
	e.do(func() { e.acceptCall(cid, accept) })
}

// EndCall hangs up the active call, whichever phase it is in.
func (e *Engine) EndCall() {
	e.do(func() { e.endCall(true) })
}

// HandleFrame feeds one inbound call-signaling message into the machine.
// Called from the connection's read loop; ordering per sender is preserved
// by the command queue.
func (e *Engine) HandleFrame(cm wire.CallMessage) {
	e.do(func() { e.handleFrame(cm) })
}

// States streams observable transitions. The channel is buffered; when an
// observer lags, the oldest update is dropped in favor of the newest.
func (e *Engine) States() <-chan State { return e.states }

// Current returns the last published observable state.
func (e *Engine) Current() State { return e.current.Load().(State) }

// Close tears down any active call and stops the engine. The states channel
// is closed after the final transition.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.done) })
}

func (e *Engine) do(f func()) {
	select {
	case e.cmds <- f:
	case <-e.done:
	}
}

func (e *Engine) loop() {
	defer func() {
		e.teardownCall()
		close(e.states)
	}()
	for {
		var busyC, ringC <-chan time.Time
		if e.busyTimer != nil {
			busyC = e.busyTimer.C()
		}
		if e.ringTimer != nil {
			ringC = e.ringTimer.C()
		}
		select {
		case <-e.done:
			return
		case cmd := <-e.cmds:
			cmd()
		case <-busyC:
			e.busyTimer = nil
			e.busyExpired()
		case <-ringC:
			e.ringTimer = nil
			e.ringExpired()
		}
	}
}

func (e *Engine) makeCall(cid domain.ConversationID) {
	if e.ph != stInactive {
		log.Warn().Str("module", "call.engine").Stringer("phase", e.ph).Int64("conversation", int64(cid)).Msg("makeCall ignored, call already active")
		return
	}
	e.ph, e.cid = stCalling, cid
	e.emit(wire.Calling, cid, "")
	e.publish(State{Phase: Calling, ConversationID: cid})
	e.armRing()
}

func (e *Engine) acceptCall(cid domain.ConversationID, accept bool) {
	if e.ph != stCalled || e.cid != cid {
		log.Warn().Str("module", "call.engine").Stringer("phase", e.ph).Int64("conversation", int64(cid)).Msg("acceptCall ignored, no matching incoming call")
		return
	}
	if !accept {
		// Same cleanup as End so nothing buffered for this call (ICE in
		// particular) survives into the next one.
		e.teardownCall()
		e.ph, e.cid = stBusy, 0
		e.emit(wire.Busy, cid, "")
		e.publish(State{Phase: Busy})
		e.busyTimer = e.opts.Clock.NewTimer(e.opts.BusyDelay)
		return
	}
	e.emit(wire.AcceptCall, cid, "")
	if !e.startMedia() {
		return
	}
	e.ph = stConnecting
	e.publish(State{Phase: Connecting, ConversationID: cid})
}

func (e *Engine) handleFrame(cm wire.CallMessage) {
	switch cm.Kind {
	case wire.Calling:
		e.recvCalling(cm)
	case wire.AcceptCall:
		e.recvAccept(cm)
	case wire.Busy:
		e.recvBusy(cm)
	case wire.OfferSDP:
		e.recvOffer(cm)
	case wire.AnswerSDP:
		e.recvAnswer(cm)
	case wire.IceSDP:
		e.recvIce(cm)
	case wire.End:
		e.recvEnd(cm)
	}
}

// recvCalling answers Busy to the caller when any call is already active;
// the local state stays untouched either way except for the fresh ring.
func (e *Engine) recvCalling(cm wire.CallMessage) {
	if e.ph != stInactive {
		e.emit(wire.Busy, cm.ConversationID, "")
		return
	}
	e.ph, e.cid = stCalled, cm.ConversationID
	e.publish(State{Phase: Called, ConversationID: cm.ConversationID})
	e.armRing()
}

// recvAccept runs on the caller: the callee answered, so the media session
// starts and the local offer goes out.
func (e *Engine) recvAccept(cm wire.CallMessage) {
	if e.ph != stCalling || e.cid != cm.ConversationID {
		e.ignore("AcceptCall", cm)
		return
	}
	if !e.startMedia() {
		return
	}
	e.ph = stConnecting
	e.publish(State{Phase: Connecting, ConversationID: e.cid})

	offer, err := e.session.Offer(context.Background())
	if err != nil {
		e.failCall(err)
		return
	}
	e.emit(wire.OfferSDP, e.cid, offer)
}

// recvOffer runs on the callee: applying the remote offer sets the remote
// description, so buffered ICE flushes here.
func (e *Engine) recvOffer(cm wire.CallMessage) {
	if e.ph != stConnecting || e.cid != cm.ConversationID {
		e.ignore("OfferSDP", cm)
		return
	}
	answer, err := e.session.AnswerTo(context.Background(), cm.SDP)
	if err != nil {
		e.failCall(err)
		return
	}
	e.remoteSet = true
	e.flushIce()
	e.emit(wire.AnswerSDP, e.cid, answer)
}

func (e *Engine) recvAnswer(cm wire.CallMessage) {
	if e.ph != stConnecting || e.cid != cm.ConversationID {
		e.ignore("AnswerSDP", cm)
		return
	}
	if err := e.session.HandleAnswer(context.Background(), cm.SDP); err != nil {
		e.failCall(err)
		return
	}
	e.remoteSet = true
	e.flushIce()
	e.stopRing()
	e.ph = stInCall
	e.publish(State{Phase: InCall, ConversationID: e.cid})
}

// recvIce buffers candidates that arrive before the remote description is
// applied and feeds them through in original receipt order afterwards.
func (e *Engine) recvIce(cm wire.CallMessage) {
	if !e.ph.active() || e.cid != cm.ConversationID {
		e.ignore("IceSDP", cm)
		return
	}
	if e.session == nil || !e.remoteSet {
		e.pendingIce = append(e.pendingIce, cm.SDP)
		return
	}
	if err := e.session.HandleIce(context.Background(), cm.SDP); err != nil {
		log.Warn().Str("module", "call.engine").Err(err).Msg("ice candidate rejected")
	}
}

func (e *Engine) recvBusy(cm wire.CallMessage) {
	if !e.ph.active() || e.cid != cm.ConversationID {
		e.ignore("Busy", cm)
		return
	}
	e.teardownCall()
	e.ph, e.cid = stBusy, 0
	e.publish(State{Phase: Busy})
	e.busyTimer = e.opts.Clock.NewTimer(e.opts.BusyDelay)
}

func (e *Engine) recvEnd(cm wire.CallMessage) {
	if !e.ph.active() || e.cid != cm.ConversationID {
		e.ignore("End", cm)
		return
	}
	e.endCall(false)
}

// endCall is the single exit path: it always releases the media session and
// cancels ICE forwarding before the state resets, whichever phase we came
// from. The observable End is only emitted for established calls.
func (e *Engine) endCall(sendFrame bool) {
	if e.ph == stInactive {
		return
	}
	wasInCall := e.ph == stInCall
	cid := e.cid
	if sendFrame && cid != 0 {
		e.emit(wire.End, cid, "")
	}
	e.teardownCall()
	e.ph, e.cid = stInactive, 0
	if wasInCall {
		e.publish(State{Phase: Ended})
	}
	e.publish(State{Phase: Inactive})
}

// failCall handles media negotiation failures: the peer gets End so it does
// not hang mid-negotiation, and the local machine fails safe to Inactive.
func (e *Engine) failCall(err error) {
	log.Error().Str("module", "call.engine").Int64("conversation", int64(e.cid)).Err(err).Msg("media negotiation failed, ending call")
	if e.cid != 0 {
		e.emit(wire.End, e.cid, "")
	}
	e.teardownCall()
	e.ph, e.cid = stInactive, 0
	e.publish(State{Phase: Ended})
	e.publish(State{Phase: Inactive})
}

func (e *Engine) startMedia() bool {
	session, err := e.media.NewSession()
	if err == nil {
		err = session.Create()
	}
	if err != nil {
		e.failCall(err)
		return false
	}
	e.session = session
	e.remoteSet = false
	e.pendingIce = nil

	ctx, cancel := context.WithCancel(context.Background())
	e.iceCancel = cancel
	go e.forwardIce(ctx, session.IceCandidates(), e.cid)
	return true
}

// forwardIce relays locally gathered candidates until the call ends or the
// session closes its stream.
func (e *Engine) forwardIce(ctx context.Context, candidates <-chan string, cid domain.ConversationID) {
	for {
		select {
		case <-ctx.Done():
			return
		case candidate, ok := <-candidates:
			if !ok {
				return
			}
			e.emit(wire.IceSDP, cid, candidate)
		}
	}
}

func (e *Engine) flushIce() {
	for _, candidate := range e.pendingIce {
		if err := e.session.HandleIce(context.Background(), candidate); err != nil {
			log.Warn().Str("module", "call.engine").Err(err).Msg("buffered ice candidate rejected")
		}
	}
	e.pendingIce = nil
}

func (e *Engine) busyExpired() {
	if e.ph == stBusy {
		e.ph = stInactive
		e.publish(State{Phase: Inactive})
	}
}

func (e *Engine) ringExpired() {
	if e.ph == stCalling || e.ph == stCalled || e.ph == stConnecting {
		log.Info().Str("module", "call.engine").Int64("conversation", int64(e.cid)).Msg("ring timeout, ending call")
		e.endCall(true)
	}
}

func (e *Engine) armRing() {
	if e.opts.RingTimeout <= 0 {
		return
	}
	e.stopRing()
	e.ringTimer = e.opts.Clock.NewTimer(e.opts.RingTimeout)
}

func (e *Engine) stopRing() {
	if e.ringTimer != nil {
		e.ringTimer.Stop()
		e.ringTimer = nil
	}
}

func (e *Engine) stopTimers() {
	e.stopRing()
	if e.busyTimer != nil {
		e.busyTimer.Stop()
		e.busyTimer = nil
	}
}

func (e *Engine) teardownCall() {
	e.stopTimers()
	if e.iceCancel != nil {
		e.iceCancel()
		e.iceCancel = nil
	}
	if e.session != nil {
		e.session.Teardown()
		e.session = nil
	}
	e.pendingIce = nil
	e.remoteSet = false
}

func (e *Engine) emit(kind wire.CallKind, cid domain.ConversationID, sdp string) {
	frame := wire.NewCallFrame(wire.CallMessage{
		UserID:         e.userID,
		ConversationID: cid,
		Kind:           kind,
		SDP:            sdp,
	})
	if err := e.sender.Send(frame); err != nil {
		log.Warn().Str("module", "call.engine").Stringer("kind", kind).Err(err).Msg("outbound call frame not sent")
	}
}

func (e *Engine) ignore(kind string, cm wire.CallMessage) {
	log.Debug().Str("module", "call.engine").Str("kind", kind).Stringer("phase", e.ph).Int64("conversation", int64(cm.ConversationID)).Msg("frame without matching call context ignored")
}

func (e *Engine) publish(s State) {
	e.current.Store(s)
	select {
	case e.states <- s:
		return
	default:
	}
	// Observer is lagging: drop the oldest update, keep the newest.
	select {
	case <-e.states:
	default:
	}
	select {
	case e.states <- s:
	default:
	}
}
