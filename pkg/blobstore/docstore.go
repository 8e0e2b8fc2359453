package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// DocStoreClient talks to the remote document storage service. Requests
// carry a bearer access token; on an authorization failure the token is
// refreshed and the request retried exactly once.
type DocStoreClient struct {
	server     string
	loginURL   string
	email      string
	password   string
	code       string
	httpClient *http.Client
	logger     *zap.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// NewDocStoreClient creates an unauthenticated client. Login happens
// lazily on first use and again whenever the access token lapses.
func NewDocStoreClient(serverURL, loginURL, email, password, code string, logger *zap.Logger) *DocStoreClient {
	if loginURL == "" {
		loginURL = serverURL
	}
	return &DocStoreClient{
		server:     strings.TrimRight(serverURL, "/"),
		loginURL:   strings.TrimRight(loginURL, "/"),
		email:      email,
		password:   password,
		code:       code,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type tokenResponse struct {
	Tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"tokens"`
}

// Login authenticates with the storage service and stores the token pair.
func (c *DocStoreClient) Login(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{
		"email":    c.email,
		"password": c.password,
		"code":     c.code,
		"type":     "password",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL+"/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach storage login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("storage login failed with status %d", resp.StatusCode)
	}

	var tokens tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}

	c.mu.Lock()
	c.accessToken = tokens.Tokens.AccessToken
	c.refreshToken = tokens.Tokens.RefreshToken
	c.mu.Unlock()
	return nil
}

func (c *DocStoreClient) refresh(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := c.refreshToken
	c.mu.Unlock()
	if refreshToken == "" {
		return c.Login(ctx)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL+"/refresh", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+refreshToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to refresh storage token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Token refresh rejected, re-authenticating",
			zap.Int("status", resp.StatusCode))
		return c.Login(ctx)
	}

	var tokens tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return fmt.Errorf("failed to decode refresh response: %w", err)
	}

	c.mu.Lock()
	c.accessToken = tokens.Tokens.AccessToken
	c.refreshToken = tokens.Tokens.RefreshToken
	c.mu.Unlock()
	return nil
}

// ensureToken makes sure a usable access token is present, refreshing
// proactively when the token has visibly expired.
func (c *DocStoreClient) ensureToken(ctx context.Context) error {
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()

	if token == "" {
		return c.Login(ctx)
	}
	if tokenExpired(token) {
		return c.refresh(ctx)
	}
	return nil
}

// tokenExpired inspects the unverified exp claim. Signature verification
// belongs to the storage service; the claim is only a hint to skip a
// guaranteed 401 round trip.
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Now().After(exp.Time)
}

// do sends an authenticated request, refreshing and retrying once on 401.
func (c *DocStoreClient) do(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	send := func() (*http.Response, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		c.mu.Unlock()
		return c.httpClient.Do(req)
	}

	resp, err := send()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		if err := c.refresh(ctx); err != nil {
			return nil, err
		}
		return send()
	}
	return resp, nil
}

type uploadTicket struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
	ID     string            `json:"id"`
}

// Upload implements BlobStore. The storage service hands out a presigned
// upload target; the file bytes go there directly.
func (c *DocStoreClient) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	meta, _ := json.Marshal(map[string]string{
		"title": filename,
		"date":  time.Now().UTC().Format("2006-01-02"),
	})
	body, _ := json.Marshal(map[string]string{
		"metadata": string(meta),
		"filename": filename,
		"mimetype": "application/pdf",
		"doctype":  "Document",
	})

	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+"/document", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("failed to get upload ticket: status %d", resp.StatusCode)
	}

	var ticket uploadTicket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		return "", fmt.Errorf("failed to decode upload ticket: %w", err)
	}
	if ticket.URL == "" {
		return "", fmt.Errorf("upload ticket carries no target url")
	}

	if err := c.postMultipart(ctx, ticket, data, filename); err != nil {
		return "", err
	}
	return ticket.ID, nil
}

func (c *DocStoreClient) postMultipart(ctx context.Context, ticket uploadTicket, data []byte, filename string) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range ticket.Fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ticket.URL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post blob to storage: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("storage upload rejected with status %d", resp.StatusCode)
	}
	return nil
}

// GetDownloadURL implements BlobStore.
func (c *DocStoreClient) GetDownloadURL(ctx context.Context, blobID string) (string, error) {
	resp, err := c.do(ctx, func() (*http.Request, error) {
		url := fmt.Sprintf("%s/document/%s?isAttachment=true&pdf=true", c.server, blobID)
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to resolve download url for %s: status %d", blobID, resp.StatusCode)
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode download url response: %w", err)
	}
	return payload.URL, nil
}

// Download implements BlobStore.
func (c *DocStoreClient) Download(ctx context.Context, blobID string) ([]byte, error) {
	url, err := c.GetDownloadURL(ctx, blobID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob %s: %w", blobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blob download failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
