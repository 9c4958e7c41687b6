package dailylog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = "# d\n\n## A\n- a1\n\n## B\n- b1\n"

func TestAppendToSection_Middle(t *testing.T) {
	got := AppendToSection(doc, "## A", []string{"- a2"})
	assert.Equal(t, "# d\n\n## A\n- a1\n- a2\n\n## B\n- b1\n", got)
}

func TestAppendToSection_Last(t *testing.T) {
	got := AppendToSection(doc, "## B", []string{"- b2", "- b3"})
	assert.Equal(t, "# d\n\n## A\n- a1\n\n## B\n- b1\n- b2\n- b3\n", got)
}

func TestAppendToSection_MissingSection(t *testing.T) {
	got := AppendToSection(doc, "## C", []string{"- c1"})
	assert.Equal(t, "# d\n\n## A\n- a1\n\n## B\n- b1\n\n## C\n- c1\n", got)
}

func TestAppendToSection_HeaderMustBeWholeLine(t *testing.T) {
	got := AppendToSection("## AB\n- x\n", "## A", []string{"- y"})
	assert.Equal(t, "## AB\n- x\n\n## A\n- y\n", got)
}

func TestLog_DirCreatesFromTemplate(t *testing.T) {
	root := t.TempDir()
	l := New(NewDir(root), "21:00")
	ctx := context.Background()

	require.NoError(t, l.AppendToSection(ctx, "2026-10-14", Morning, []string{"- Mood: tired"}))
	require.NoError(t, l.AppendToSection(ctx, "2026-10-14", CheckIn, []string{"- How was today: fine"}))
	require.NoError(t, l.AppendToSection(ctx, "2026-10-14", Todo, []string{"- [ ] taxes"}))

	data, err := os.ReadFile(filepath.Join(root, "daily", "2026-10-14.md"))
	require.NoError(t, err)
	content := string(data)

	assert.True(t, strings.HasPrefix(content, "# 2026-10-14\n"))
	assert.Contains(t, content, "- Must-do:\n- Mood: tired\n\n## Plan (optional)")
	assert.Contains(t, content, "## 21:00 Check-in\n- How was today:\n- How was today: fine\n\n## Todo")
	assert.Contains(t, content, "## Todo\n- [ ] taxes\n\n## Notes")

	got, err := l.Read(ctx, "2026-10-14")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	missing, err := l.Read(ctx, "2026-10-15")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

type fakeRepo struct {
	mu    sync.Mutex
	files map[string]string // path -> content
	shas  map[string]string
	puts  []map[string]string
}

func (f *fakeRepo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	const prefix = "/repos/me/notes/contents/"
	if r.Header.Get("Authorization") != "Bearer tok" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, prefix)
	switch r.Method {
	case "GET":
		content, ok := f.files[path]
		if !ok {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		enc := base64.StdEncoding.EncodeToString([]byte(content))
		// wrap like the real API
		var wrapped strings.Builder
		for len(enc) > 60 {
			wrapped.WriteString(enc[:60] + "\n")
			enc = enc[60:]
		}
		wrapped.WriteString(enc)
		body, _ := json.Marshal(map[string]string{"content": wrapped.String(), "sha": f.shas[path]})
		w.Write(body)
	case "PUT":
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if payload["sha"] != f.shas[path] {
			http.Error(w, `{"message":"sha mismatch"}`, http.StatusConflict)
			return
		}
		raw, _ := base64.StdEncoding.DecodeString(payload["content"])
		f.files[path] = string(raw)
		f.shas[path] = fmt.Sprintf("sha%d", len(f.puts)+1)
		f.puts = append(f.puts, payload)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{}`)
	}
}

func TestLog_GitHub(t *testing.T) {
	repo := &fakeRepo{files: map[string]string{}, shas: map[string]string{}}
	srv := httptest.NewServer(repo)
	defer srv.Close()

	gh := NewGitHub(GitHubConfig{Token: "tok", Owner: "me", Repo: "notes", BaseURL: srv.URL})
	l := New(gh, "21:30")
	ctx := context.Background()

	require.NoError(t, l.AppendToSection(ctx, "2026-10-14", Plan, []string{"- 15:00-17:00 Lombard"}))
	require.NoError(t, l.AppendToSection(ctx, "2026-10-14", Notes, []string{"- 10:00 called the bank"}))

	require.Len(t, repo.puts, 3)
	assert.Equal(t, "Create daily log 2026-10-14", repo.puts[0]["message"])
	assert.Empty(t, repo.puts[0]["sha"])
	assert.Equal(t, "Update plan log 2026-10-14", repo.puts[1]["message"])
	assert.Equal(t, "sha1", repo.puts[1]["sha"])

	content := repo.files["daily/2026-10-14.md"]
	assert.Contains(t, content, "## 21:30 Check-in")
	assert.Contains(t, content, "- Planned Blocks:\n- 15:00-17:00 Lombard\n\n## 21:30 Check-in")
	assert.True(t, strings.HasSuffix(content, "## Notes\n- 10:00 called the bank\n"))
}

func TestGitHub_LoadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := New(NewGitHub(GitHubConfig{Token: "tok", Owner: "me", Repo: "notes", BaseURL: srv.URL}), "21:00")
	err := l.AppendToSection(context.Background(), "2026-10-14", Morning, []string{"- x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
