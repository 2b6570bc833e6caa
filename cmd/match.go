package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haulnet/relay/config"
)

var matchLoadID string

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Request an on-demand match for a load from a running engine",
	RunE:  requestMatch,
}

func init() {
	matchCmd.Flags().StringVar(&matchLoadID, "load", "", "load id to match")
	_ = matchCmd.MarkFlagRequired("load")
	rootCmd.AddCommand(matchCmd)
}

// requestMatch calls the engine's on-demand match endpoint and prints the
// resulting match, or the engine's error verbatim.
func requestMatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	addr := cfg.API.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	endpoint := fmt.Sprintf("http://%s/api/matches?load_id=%s", addr, url.QueryEscape(matchLoadID))

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(endpoint, "application/json", nil)
	if err != nil {
		return fmt.Errorf("request match: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("match %s: %s: %s", matchLoadID, resp.Status, strings.TrimSpace(string(body)))
	}
	fmt.Fprintln(os.Stdout, strings.TrimSpace(string(body)))
	return nil
}
