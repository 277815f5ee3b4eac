// Package liveblog posts entries to a CMS live blog.
package liveblog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/newthinker/aurum/internal/core"
)

// Config holds the CMS credentials.
type Config struct {
	// URL is the site root or a full REST endpoint.
	URL         string
	User        string
	AppPassword string
	ParentID    int
	Status      string
	Client      *http.Client
}

// Entry is one live-blog update written in Markdown.
type Entry struct {
	Title    string
	Markdown string
}

// Poster creates live-blog entries under a parent post.
type Poster struct {
	endpoint string
	user     string
	password string
	parent   int
	status   string
	client   *http.Client
	md       goldmark.Markdown
}

// New creates a Poster. It fails with core.ErrNotifierDisabled when the
// URL or credentials are missing.
func New(cfg Config) (*Poster, error) {
	if cfg.URL == "" {
		return nil, core.WrapError(core.ErrNotifierDisabled, fmt.Errorf("liveblog: url is required"))
	}
	if cfg.User == "" || cfg.AppPassword == "" {
		return nil, core.WrapError(core.ErrNotifierDisabled, fmt.Errorf("liveblog: user and app password are required"))
	}
	if cfg.Status == "" {
		cfg.Status = "publish"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Poster{
		endpoint: endpoint(cfg.URL),
		user:     cfg.User,
		password: cfg.AppPassword,
		parent:   cfg.ParentID,
		status:   cfg.Status,
		client:   cfg.Client,
		md:       goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}, nil
}

// endpoint appends the posts route to a bare site URL.
func endpoint(u string) string {
	u = strings.TrimRight(u, "/")
	if strings.Contains(u, "/wp-json/") {
		return u
	}
	return u + "/wp-json/wp/v2/posts"
}

// Name identifies the channel in logs and metrics.
func (p *Poster) Name() string { return "liveblog" }

// Render converts Markdown to HTML.
func (p *Poster) Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := p.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type payload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  string `json:"status"`
	Parent  int    `json:"parent,omitempty"`
}

// Post renders e and creates the entry.
func (p *Poster) Post(ctx context.Context, e Entry) error {
	content, err := p.Render(e.Markdown)
	if err != nil {
		return core.WrapError(core.ErrNotifierFailed, fmt.Errorf("liveblog: render: %w", err))
	}

	body, err := json.Marshal(payload{Title: e.Title, Content: content, Status: p.status, Parent: p.parent})
	if err != nil {
		return fmt.Errorf("liveblog: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("liveblog: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(p.user, p.password)

	resp, err := p.client.Do(req)
	if err != nil {
		return core.WrapError(core.ErrNotifierFailed, fmt.Errorf("liveblog: request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return core.WrapError(core.ErrNotifierFailed,
			fmt.Errorf("liveblog: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	return nil
}
