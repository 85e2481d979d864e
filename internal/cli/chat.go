package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkeye/Chatter/internal/adapters/wsclient"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/dkeye/Chatter/internal/wire"
)

var chatCmd = &cobra.Command{
	Use:   "chat <conversationID>",
	Short: "Join a conversation: stdin lines are sent, inbound messages printed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cid, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid conversation id %q", args[0])
		}
		if err := requireUser(); err != nil {
			return err
		}
		conversationID := domain.ConversationID(cid)
		me := domain.UserID(userID)

		client, err := wsclient.Dial(cmd.Context(), serverURL, me)
		if err != nil {
			return err
		}
		defer client.Close()

		go func() {
			for frame := range client.Frames() {
				if frame.Type != wire.FrameText {
					continue
				}
				msg, err := wire.DecodeTextMessage(frame.Content)
				if err != nil {
					continue
				}
				who := fmt.Sprintf("user %d", msg.SenderID)
				if msg.SenderID == me {
					who = "me"
				}
				fmt.Printf("[%s] %s: %s\n",
					time.UnixMilli(msg.SentTime).Format("15:04:05"), who, msg.Text)
			}
		}()

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			text := scanner.Text()
			if text == "" {
				continue
			}
			msg := domain.Message{
				ID:             domain.NewMessageID(),
				Text:           text,
				SentTime:       time.Now().UnixMilli(),
				SenderID:       me,
				ConversationID: conversationID,
			}
			if err := client.Send(wire.NewTextFrame(msg)); err != nil {
				return err
			}
		}
		return scanner.Err()
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
