package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	. "github.com/roelfdiedericks/instasave/internal/logging"
)

// apiURL is the Telegram Bot API root.
var apiURL = "https://api.telegram.org"

// TestToken validates a Telegram bot token by calling getMe and returns the
// bot's username.
func TestToken(ctx context.Context, token string) (string, error) {
	return testToken(ctx, http.DefaultClient, apiURL, token)
}

func testToken(ctx context.Context, client *http.Client, base, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("bot token is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/bot%s/getMe", base, token)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK     bool `json:"ok"`
		Result struct {
			Username string `json:"username"`
		} `json:"result"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if !result.OK {
		return "", fmt.Errorf("invalid token: %s", result.Description)
	}

	L_debug("telegram: validated token", "username", result.Result.Username)
	return result.Result.Username, nil
}
