// Package store persists the corpus document shared by the split,
// transcribe and align stages.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/pipeline"
)

var (
	// ErrExists 创建时文档已存在
	ErrExists = errors.New("corpus document already exists")
	// ErrNotFound 文档不存在
	ErrNotFound = errors.New("corpus document not found")
	// ErrMalformed 文档内容不是合法的语料 JSON
	ErrMalformed = errors.New("corpus document malformed")
	// ErrUnknownChunk 合并了不存在的切片 ID
	ErrUnknownChunk = errors.New("unknown chunk id")
	// ErrInvalidRecord 记录边界非法
	ErrInvalidRecord = errors.New("invalid chunk record")
)

// Store is bound to a single corpus document path. Merges issued through
// the same Store are serialized.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a Store for the document at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the document is present on disk.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Create writes a fresh document holding exactly records. It fails with
// ErrExists when a document is already present.
func (s *Store) Create(ctx context.Context, records Corpus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return pipeline.NewError(pipeline.CORPUS_EXISTS, s.path, ErrExists)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat corpus: %w", err)
	}

	for id, r := range records {
		if id == "" || !(r.Start >= 0 && r.Start < r.End) {
			return fmt.Errorf("%w: %q start=%v end=%v", ErrInvalidRecord, id, r.Start, r.End)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create corpus dir: %w", err)
	}
	return s.write(records)
}

// Load reads the whole document.
func (s *Store) Load(ctx context.Context) (Corpus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Merge overwrites only the fields named in each Update. Every id in
// updates must already exist; otherwise nothing is written and an
// ErrUnknownChunk error is returned.
func (s *Store) Merge(ctx context.Context, updates map[string]Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	corpus, err := s.read()
	if err != nil {
		return err
	}

	for id := range updates {
		if _, ok := corpus[id]; !ok {
			return pipeline.NewError(pipeline.UNKNOWN_CHUNK, id, ErrUnknownChunk)
		}
	}

	changed := false
	for id, u := range updates {
		if u.Empty() {
			continue
		}
		r := corpus[id]
		u.Apply(&r)
		corpus[id] = r
		changed = true
	}
	if !changed {
		return nil
	}
	return s.write(corpus)
}

func (s *Store) read() (Corpus, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, pipeline.NewError(pipeline.CORPUS_MISSING, s.path, ErrNotFound)
		}
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var corpus Corpus
	if err := dec.Decode(&corpus); err != nil {
		return nil, pipeline.NewError(pipeline.CORPUS_MALFORMED, s.path, fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if corpus == nil {
		return nil, pipeline.NewError(pipeline.CORPUS_MALFORMED, s.path, fmt.Errorf("%w: document is null", ErrMalformed))
	}
	return corpus, nil
}

// write replaces the document atomically: temp file in the same
// directory, fsync, rename.
func (s *Store) write(corpus Corpus) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(corpus); err != nil {
		return fmt.Errorf("encode corpus: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
