package rclone

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"gopkg.in/ini.v1"
)

// ErrNoCookie is returned when the share endpoint did not hand out a cookie
var ErrNoCookie = errors.New("share endpoint returned no cookie")

// ShareURL converts a WebDAV remote url into its public share API url
func ShareURL(davURL string) string {
	return strings.Replace(davURL, "/ds/dav/", "/v2/api/share/public/", 1)
}

// CookieRefresher renews the session cookie of WebDAV remotes that require
// one, writing it into the remote's headers option in rclone.conf.
type CookieRefresher struct {
	configPath string
	client     *http.Client
	logger     *slog.Logger
}

// NewCookieRefresher creates a refresher editing the rclone.conf at configPath
func NewCookieRefresher(configPath string, client *http.Client, logger *slog.Logger) *CookieRefresher {
	return &CookieRefresher{
		configPath: configPath,
		client:     client,
		logger:     logger,
	}
}

// Refresh fetches a fresh cookie for remote and saves it. The config file is
// only written after a successful response that carried a cookie.
func (c *CookieRefresher) Refresh(ctx context.Context, remote string) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}

	section, err := cfg.GetSection(remote)
	if err != nil {
		return fmt.Errorf("failed to find remote %s in %s: %w", remote, c.configPath, err)
	}
	davURL := section.Key("url").String()
	if davURL == "" {
		return fmt.Errorf("remote %s has no url", remote)
	}

	cookie, err := c.fetchCookie(ctx, ShareURL(davURL))
	if err != nil {
		return err
	}

	section.Key("headers").SetValue(`Cookie,"` + cookie + `"`)
	if err := cfg.SaveTo(c.configPath); err != nil {
		return fmt.Errorf("failed to save %s: %w", c.configPath, err)
	}

	c.logger.InfoContext(ctx, "refreshed remote cookie", "remote", remote)
	return nil
}

func (c *CookieRefresher) load() (*ini.File, error) {
	// Cookies carry ';' which must not be read or written as a comment.
	cfg, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, c.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", c.configPath, err)
	}
	return cfg, nil
}

func (c *CookieRefresher) fetchCookie(ctx context.Context, shareURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, shareURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create share request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request share cookie: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("share endpoint returned status %d", resp.StatusCode)
	}

	cookie := resp.Header.Get("Set-Cookie")
	if cookie == "" {
		return "", ErrNoCookie
	}
	return cookie, nil
}
