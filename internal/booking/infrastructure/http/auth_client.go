package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/samilyak/stayflow/internal/booking/application"
)

var ErrUnauthorized = errors.New("token rejected")

// AuthClient resolves bearer tokens against the auth service.
type AuthClient struct {
	baseURL  string
	httpClnt *http.Client
}

func NewAuthClient(baseURL string) *AuthClient {
	return &AuthClient{baseURL: baseURL, httpClnt: &http.Client{Timeout: 5 * time.Second}}
}

func (c *AuthClient) Resolve(ctx context.Context, token string) (application.Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return application.Principal{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClnt.Do(req)
	if err != nil {
		return application.Principal{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return application.Principal{}, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return application.Principal{}, fmt.Errorf("auth service returned %d", resp.StatusCode)
	}

	var out struct {
		UserID int64  `json:"userId"`
		Role   string `json:"role"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return application.Principal{}, err
	}
	return application.Principal{UserID: out.UserID, Role: out.Role}, nil
}
