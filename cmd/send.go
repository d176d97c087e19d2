package cmd

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

	"github.com/nextlevelbuilder/courier/internal/config"
)

// sendCmd pushes an operator message through a running relay's
// /internal/send endpoint.
func sendCmd() *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "send <to> <text>",
		Short: "Send a message to a user through the running relay",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			token := cfg.Server.InternalToken
			if token == "" {
				token = os.Getenv("COURIER_INTERNAL_TOKEN")
			}
			if token == "" {
				return fmt.Errorf("COURIER_INTERNAL_TOKEN is not set")
			}

			host := cfg.Server.Host
			if host == "" || host == "0.0.0.0" {
				host = "127.0.0.1"
			}
			endpoint := fmt.Sprintf("http://%s:%d/internal/send", host, cfg.Server.Port)

			payload, _ := json.Marshal(map[string]string{
				"channel": channel,
				"to":      args[0],
				"text":    args[1],
			})
			req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Token", token)

			client := &http.Client{Timeout: 30 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("call relay: %w", err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("relay returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}
			fmt.Printf("sent: %s\n", strings.TrimSpace(string(body)))
			return nil
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "channel to send through (default: the relay's only channel)")
	return cmd
}
