package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkeye/Chatter/internal/adapters/rtc"
	"github.com/dkeye/Chatter/internal/adapters/wsclient"
	"github.com/dkeye/Chatter/internal/call"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/dkeye/Chatter/internal/wire"
)

var (
	stunServers []string
	ringTimeout time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call <conversationID>",
	Short: "Place an audio call into a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cid, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid conversation id %q", args[0])
		}
		return runCall(cmd, domain.ConversationID(cid), false)
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Wait for an incoming call and accept it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCall(cmd, 0, true)
	},
}

func runCall(cmd *cobra.Command, cid domain.ConversationID, listen bool) error {
	if err := requireUser(); err != nil {
		return err
	}
	me := domain.UserID(userID)

	client, err := wsclient.Dial(cmd.Context(), serverURL, me)
	if err != nil {
		return err
	}
	defer client.Close()

	engine := call.NewEngine(me, client, rtc.NewFactory(stunServers), call.Options{
		RingTimeout: ringTimeout,
	})
	defer engine.Close()

	// Feed inbound call signaling to the engine; text frames are not ours.
	framesDone := make(chan struct{})
	go func() {
		defer close(framesDone)
		for frame := range client.Frames() {
			if frame.Type != wire.FrameCall {
				continue
			}
			cm, err := wire.DecodeCallMessage(frame.Content)
			if err != nil {
				continue
			}
			engine.HandleFrame(cm)
		}
	}()

	go func() {
		for s := range engine.States() {
			fmt.Println("call:", s)
			if listen && s.Phase == call.Called {
				engine.AcceptCall(s.ConversationID, true)
			}
		}
	}()

	if !listen {
		engine.MakeCall(cid)
	}

	select {
	case <-cmd.Context().Done():
	case <-framesDone:
	}
	engine.EndCall()
	return nil
}

func init() {
	for _, c := range []*cobra.Command{callCmd, listenCmd} {
		c.Flags().StringSliceVar(&stunServers, "stun", []string{"stun:stun.l.google.com:19302"}, "STUN servers for ICE")
		c.Flags().DurationVar(&ringTimeout, "ring-timeout", 0, "end an unanswered call after this duration (0 disables)")
	}
	rootCmd.AddCommand(callCmd, listenCmd)
}
