package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrInvalidToken はトークン検証の失敗
var ErrInvalidToken = errors.New("invalid or expired token")

// User は検証済みトークンから得られる利用者情報
type User struct {
	ID    string
	Email string
}

// Verifier はBearerトークンの検証
type Verifier interface {
	Verify(ctx context.Context, token string) (User, error)
}

// HTTPVerifier は外部認証プロバイダーのユーザーエンドポイントへ問い合わせるVerifier
type HTTPVerifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPVerifier は新しいHTTPVerifierを作成
func NewHTTPVerifier(baseURL, apiKey string) *HTTPVerifier {
	return &HTTPVerifier{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify はトークンを検証してユーザー情報を返す
// 認証プロバイダーが2xx以外を返した場合はErrInvalidTokenになる
func (v *HTTPVerifier) Verify(ctx context.Context, token string) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return User{}, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", v.apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("call auth provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return User{}, ErrInvalidToken
	}

	var payload struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return User{}, fmt.Errorf("decode auth response: %w", err)
	}
	if payload.ID == "" {
		return User{}, ErrInvalidToken
	}
	return User{ID: payload.ID, Email: payload.Email}, nil
}
