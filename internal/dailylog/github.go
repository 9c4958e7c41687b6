package dailylog

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const githubAPI = "https://api.github.com"

type GitHubConfig struct {
	Token   string
	Owner   string
	Repo    string
	Branch  string // empty means the default branch
	Timeout time.Duration
	BaseURL string // overridden in tests
}

// GitHub stores documents through the repository contents API.
type GitHub struct {
	cfg        GitHubConfig
	httpClient *http.Client
}

func NewGitHub(cfg GitHubConfig) *GitHub {
	if cfg.BaseURL == "" {
		cfg.BaseURL = githubAPI
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &GitHub{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

func (g *GitHub) url(path string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", g.cfg.BaseURL, g.cfg.Owner, g.cfg.Repo, path)
}

func (g *GitHub) do(req *http.Request) (int, []byte, error) {
	req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (g *GitHub) Load(ctx context.Context, path string) (string, string, error) {
	u := g.url(path)
	if g.cfg.Branch != "" {
		u += "?ref=" + g.cfg.Branch
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}
	status, body, err := g.do(req)
	if err != nil {
		return "", "", err
	}
	switch {
	case status == http.StatusNotFound:
		return "", "", ErrNotFound
	case status != http.StatusOK:
		return "", "", fmt.Errorf("github GET %s failed (%d): %s", path, status, string(body))
	}

	// The API wraps base64 content at 60 columns.
	encoded := strings.ReplaceAll(gjson.GetBytes(body, "content").String(), "\n", "")
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", fmt.Errorf("decode %s: %w", path, err)
	}
	return string(raw), gjson.GetBytes(body, "sha").String(), nil
}

func (g *GitHub) Save(ctx context.Context, path, content, version, message string) error {
	payload := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
	}
	if version != "" {
		payload["sha"] = version
	}
	if g.cfg.Branch != "" {
		payload["branch"] = g.cfg.Branch
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", g.url(path), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	status, body, err := g.do(req)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("github PUT %s failed (%d): %s", path, status, string(body))
	}
	return nil
}
