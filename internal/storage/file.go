package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "stockwatch/pkg/logx"
)

// fileStore appends JSON lines to two files:
//   - <prefix>.checks.jsonl
//   - <prefix>.notifications.jsonl
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	checks *os.File
	notifs *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	cf, err := os.OpenFile(prefix+".checks.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	nf, err := os.OpenFile(prefix+".notifications.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = cf.Close()
		return nil, err
	}
	log.Debug("file journal opened", logx.String("prefix", prefix))
	return &fileStore{log: log, checks: cf, notifs: nf}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.checks != nil {
		err1 = s.checks.Close()
		s.checks = nil
	}
	if s.notifs != nil {
		err2 = s.notifs.Close()
		s.notifs = nil
	}
	return errors.Join(err1, err2)
}

func (s *fileStore) AppendCheck(ctx context.Context, r CheckRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checks == nil {
		return ErrDisabled
	}
	return json.NewEncoder(s.checks).Encode(r)
}

func (s *fileStore) AppendNotification(ctx context.Context, r NotificationRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifs == nil {
		return ErrDisabled
	}
	return json.NewEncoder(s.notifs).Encode(r)
}
