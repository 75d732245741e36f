package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chatd/pkg/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	var baseURL string
	root := &cobra.Command{
		Use:           "chatctl",
		Short:         "Operator CLI for a running chatd daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&baseURL, "addr",
		envOr("CHATD_URL", "http://127.0.0.1:8080"), "Base URL of the chatd daemon")

	c := &client{http: &http.Client{Timeout: 5 * time.Minute}, base: &baseURL}

	var sessionID, topic string
	chatCmd := &cobra.Command{
		Use:     "chat <message>",
		Short:   "Send one message and print the response",
		Example: "  chatctl chat \"what's on my plate today?\" --topic journal",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.chat(strings.Join(args, " "), sessionID, topic)
			if err != nil {
				return err
			}
			fmt.Println(resp.Text)
			if resp.SessionID != "" {
				fmt.Fprintf(os.Stderr, "session: %s\n", resp.SessionID)
			}
			if resp.IsError {
				fmt.Fprintln(os.Stderr, "(degraded response)")
			}
			return nil
		},
	}
	chatCmd.Flags().StringVar(&sessionID, "session", "", "Session id to resume")
	chatCmd.Flags().StringVar(&topic, "topic", "", "Topic selecting the instruction prompt")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.status()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the live conversation session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.reset(); err != nil {
				return err
			}
			fmt.Println("session reset")
			return nil
		},
	}

	root.AddCommand(chatCmd, statusCmd, resetCmd)
	return root
}

type client struct {
	http *http.Client
	base *string
}

func (c *client) chat(message, sessionID, topic string) (types.ChatResponse, error) {
	var out types.ChatResponse
	body, err := json.Marshal(types.ChatRequest{Message: message, SessionID: sessionID, Topic: topic})
	if err != nil {
		return out, err
	}
	resp, err := c.http.Post(*c.base+"/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, apiError(resp)
	}
	return out, json.NewDecoder(resp.Body).Decode(&out)
}

func (c *client) status() (types.StatusResponse, error) {
	var out types.StatusResponse
	resp, err := c.http.Get(*c.base + "/status")
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, apiError(resp)
	}
	return out, json.NewDecoder(resp.Body).Decode(&out)
}

func (c *client) reset() error {
	resp, err := c.http.Post(*c.base+"/session/reset", "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// apiError decodes the daemon's JSON error payload, falling back to the
// status text.
func apiError(resp *http.Response) error {
	var e types.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
		return fmt.Errorf("%s (HTTP %d)", e.Error, e.Code)
	}
	return fmt.Errorf("chatd returned %s", resp.Status)
}
