package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vovakirdan/duochat/internal/proto"
)

// API is the request/response surface the controller depends on.
type API interface {
	Sidebar(ctx context.Context) (*proto.SidebarResponse, error)
	Conversation(ctx context.Context, contactID string) ([]proto.Message, error)
	MarkSeen(ctx context.Context, messageID string) error
	Send(ctx context.Context, receiverID string, req proto.SendRequest) (*proto.Message, error)
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status int
	Code   string
	Msg    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Msg)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Msg)
}

// HTTPClient talks to the REST API with a bearer token.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewHTTPClient returns a client for baseURL (e.g. http://localhost:8080).
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Token returns the bearer token in use.
func (c *HTTPClient) Token() string {
	return c.token
}

// Signup creates an account and keeps the returned token.
func (c *HTTPClient) Signup(ctx context.Context, req proto.SignupRequest) (*proto.AuthResponse, error) {
	var resp proto.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", req, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

// Login authenticates and keeps the returned token.
func (c *HTTPClient) Login(ctx context.Context, email, password string) (*proto.AuthResponse, error) {
	var resp proto.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", proto.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

// Check returns the account behind the current token.
func (c *HTTPClient) Check(ctx context.Context) (*proto.User, error) {
	var user proto.User
	if err := c.do(ctx, http.MethodGet, "/api/auth/check", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile edits the signed-in user's name, bio and picture.
func (c *HTTPClient) UpdateProfile(ctx context.Context, req proto.UpdateProfileRequest) (*proto.User, error) {
	var user proto.User
	if err := c.do(ctx, http.MethodPut, "/api/auth/update-profile", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *HTTPClient) Sidebar(ctx context.Context) (*proto.SidebarResponse, error) {
	var resp proto.SidebarResponse
	if err := c.do(ctx, http.MethodGet, "/api/messages/users", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Conversation(ctx context.Context, contactID string) ([]proto.Message, error) {
	var resp proto.ConversationResponse
	if err := c.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(contactID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *HTTPClient) MarkSeen(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPut, "/api/messages/mark/"+url.PathEscape(messageID), nil, nil)
}

func (c *HTTPClient) Send(ctx context.Context, receiverID string, req proto.SendRequest) (*proto.Message, error) {
	var resp proto.SendResponse
	if err := c.do(ctx, http.MethodPost, "/api/messages/send/"+url.PathEscape(receiverID), req, &resp); err != nil {
		return nil, err
	}
	return &resp.Message, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp proto.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&errResp)
		return &APIError{Status: resp.StatusCode, Code: errResp.Code, Msg: errResp.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
