package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkeye/Chatter/internal/domain"
)

// httpBase maps the ws:// server URL onto its HTTP surface.
func httpBase() string {
	base := strings.TrimSuffix(serverURL, "/")
	switch {
	case strings.HasPrefix(base, "wss://"):
		return "https://" + strings.TrimPrefix(base, "wss://")
	case strings.HasPrefix(base, "ws://"):
		return "http://" + strings.TrimPrefix(base, "ws://")
	}
	return base
}

var apiClient = &http.Client{Timeout: 10 * time.Second}

func apiPost(path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := apiClient.Post(httpBase()+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return apiDecode(resp, out)
}

func apiGet(path string, out any) error {
	resp, err := apiClient.Get(httpBase() + path)
	if err != nil {
		return err
	}
	return apiDecode(resp, out)
}

func apiDecode(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server replied %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var registerCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Create a user and print the id to connect with",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var user domain.User
		if err := apiPost("/api/users", map[string]string{"userName": args[0]}, &user); err != nil {
			return err
		}
		fmt.Printf("registered %s as user %d\n", user.Name, user.ID)
		return nil
	},
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List the conversations the connected user belongs to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		var conversations []domain.Conversation
		if err := apiGet(fmt.Sprintf("/api/users/%d/conversations", userID), &conversations); err != nil {
			return err
		}
		if len(conversations) == 0 {
			fmt.Println("no conversations")
			return nil
		}
		for _, c := range conversations {
			fmt.Printf("%d\t%s\t%d users\n", c.ID, c.Name, len(c.Participants))
		}
		return nil
	},
}

var newConversationCmd = &cobra.Command{
	Use:   "new-conversation <name> <userID>...",
	Short: "Create a conversation with the given participants",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		users := make([]int64, 0, len(args)-1)
		for _, arg := range args[1:] {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", arg)
			}
			users = append(users, id)
		}
		var conv domain.Conversation
		body := map[string]any{"name": args[0], "users": users}
		if err := apiPost("/api/conversations", body, &conv); err != nil {
			return err
		}
		fmt.Printf("created conversation %d (%s)\n", conv.ID, conv.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(registerCmd, conversationsCmd, newConversationCmd)
}
