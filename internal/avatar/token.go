package avatar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ppvaladez/avatar-interactive/internal/upstream"
)

var (
	ErrMissingAPIKey  = errors.New("avatar API key is not configured")
	ErrMissingBaseURL = errors.New("avatar base API URL is not configured")
)

// TokenIssuer exchanges the server-held API key for a short-lived streaming
// session token.
type TokenIssuer struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewTokenIssuer(apiKey, baseURL string, client *http.Client) *TokenIssuer {
	if client == nil {
		client = upstream.NewClient(0)
	}
	return &TokenIssuer{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  client,
	}
}

func (t *TokenIssuer) CreateToken(ctx context.Context) (string, error) {
	if t.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if t.baseURL == "" {
		return "", ErrMissingBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/streaming.create_token", nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", t.apiKey)

	res, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()
	if err := upstream.CheckResponse("heygen", res); err != nil {
		return "", err
	}

	var parsed struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if parsed.Data.Token == "" {
		return "", errors.New("token response missing data.token")
	}
	return parsed.Data.Token, nil
}
