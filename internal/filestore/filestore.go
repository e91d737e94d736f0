// Package filestore talks to the external object store holding uploaded PDFs.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pdfchat/internal/config"
)

var (
	ErrMissingCredentials  = errors.New("file store credentials are not configured")
	ErrUnsupportedProvider = errors.New("unsupported file store provider")
	ErrUnexpectedURL       = errors.New("file url does not belong to the configured account")
)

// Deleter removes a stored file given the public URL it was uploaded under.
type Deleter interface {
	Delete(ctx context.Context, fileURL string) error
}

// New picks the deleter for the configured provider. "none" disables remote
// deletion entirely.
func New(cfg config.FileStoreConfig, client *http.Client) (Deleter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "bytescale":
		return NewBytescale(cfg, client), nil
	case "none", "":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}

type Noop struct{}

func (Noop) Delete(context.Context, string) error { return nil }

type Bytescale struct {
	baseURL   string
	accountID string
	secretKey string
	client    *http.Client
}

func NewBytescale(cfg config.FileStoreConfig, client *http.Client) *Bytescale {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.bytescale.com"
	}
	return &Bytescale{
		baseURL:   base,
		accountID: strings.TrimSpace(cfg.AccountID),
		secretKey: strings.TrimSpace(cfg.SecretKey),
		client:    client,
	}
}

// FilePath turns a public file URL into the account-relative path the API
// expects, e.g. https://upcdn.io/ACCT/raw/uploads/a.pdf -> /uploads/a.pdf.
func (b *Bytescale) FilePath(fileURL string) (string, error) {
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return "", fmt.Errorf("parse file url failed: %w", err)
	}
	prefix := "/" + b.accountID + "/raw"
	if !strings.HasPrefix(parsed.Path, prefix+"/") {
		return "", fmt.Errorf("%w: %s", ErrUnexpectedURL, fileURL)
	}
	return strings.TrimPrefix(parsed.Path, prefix), nil
}

func (b *Bytescale) Delete(ctx context.Context, fileURL string) error {
	if b.accountID == "" || b.secretKey == "" {
		return ErrMissingCredentials
	}
	filePath, err := b.FilePath(fileURL)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/v2/accounts/%s/files?filePath=%s",
		b.baseURL, url.PathEscape(b.accountID), url.QueryEscape(filePath))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build delete request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.secretKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete file request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("delete file failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
