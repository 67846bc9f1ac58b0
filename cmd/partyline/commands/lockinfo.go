package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

var lockInfoServer string

var lockInfoCmd = &cobra.Command{
	Use:   "lockinfo <path>",
	Short: "Query a running server's lock state for a path",
	Long: `lockinfo asks a running partyline server (started with the
serve-demo command) for the current local lock state of a path, over the admin
HTTP endpoint.`,
	Args: cobra.ExactArgs(1),
	RunE: runLockInfo,
}

func init() {
	lockInfoCmd.Flags().StringVar(&lockInfoServer, "server", "http://localhost:7777", "admin endpoint of the running server")
}

func runLockInfo(cmd *cobra.Command, args []string) error {
	reqURL := lockInfoServer + "/lockinfo?path=" + url.QueryEscape(args[0])

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(reqURL)
	if err != nil {
		return fmt.Errorf("contact server at %s: %w", lockInfoServer, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var body lockInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Println(body.Info)
	return nil
}
