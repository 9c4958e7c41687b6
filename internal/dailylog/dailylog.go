package dailylog

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by a Backend for a document that does not exist.
var ErrNotFound = errors.New("document not found")

// Backend stores whole documents. version is opaque (a blob sha for
// GitHub) and is passed back on Save for optimistic writes.
type Backend interface {
	Load(ctx context.Context, path string) (content, version string, err error)
	Save(ctx context.Context, path, content, version, message string) error
}

// Log appends to daily documents, creating each from the template on first
// use.
type Log struct {
	backend Backend
	headers headers

	mu sync.Mutex // read-modify-write of a document
}

// New returns a Log whose check-in section is titled with nightAt ("21:00").
func New(backend Backend, nightAt string) *Log {
	return &Log{backend: backend, headers: newHeaders(nightAt)}
}

// AppendToSection appends lines under section in day's document (day is
// "YYYY-MM-DD").
func (l *Log) AppendToSection(ctx context.Context, day string, section Section, lines []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := Path(day)
	content, version, err := l.backend.Load(ctx, path)
	if errors.Is(err, ErrNotFound) {
		content = l.headers.template(day)
		if err := l.backend.Save(ctx, path, content, "", "Create daily log "+day); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		if content, version, err = l.backend.Load(ctx, path); err != nil {
			return fmt.Errorf("reload %s: %w", path, err)
		}
	} else if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	updated := AppendToSection(content, l.headers.of(section), lines)
	msg := fmt.Sprintf("Update %s log %s", section, day)
	if err := l.backend.Save(ctx, path, updated, version, msg); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Read returns the day's document, or "" if it has not been created yet.
func (l *Log) Read(ctx context.Context, day string) (string, error) {
	content, _, err := l.backend.Load(ctx, Path(day))
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return content, err
}
