package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hatomail/hato/consts"
	"github.com/hatomail/hato/logger"
	"github.com/hatomail/hato/pkg/metrics"
)

// FileStore keeps accounts in a plain text file, one record per line. Every
// operation re-reads the file, so edits made outside the process are picked
// up on the next call. Writes go through a temp file and rename.
type FileStore struct {
	mu              sync.Mutex
	path            string
	defaultClientID string
}

// NewFileStore builds a file-backed store. The file does not need to exist
// yet; a missing file reads as an empty account set.
func NewFileStore(path, defaultClientID string) *FileStore {
	return &FileStore{path: path, defaultClientID: defaultClientID}
}

func (s *FileStore) List(ctx context.Context) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		metrics.StoreOperationsTotal.WithLabelValues("file", "list", "failure").Inc()
		return nil, err
	}
	metrics.StoreOperationsTotal.WithLabelValues("file", "list", "success").Inc()
	metrics.AccountsTotal.Set(float64(len(accounts)))
	return accounts, nil
}

func (s *FileStore) Get(ctx context.Context, email string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return Account{}, err
	}
	for _, account := range accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return Account{}, fmt.Errorf("%w: %s", consts.ErrAccountNotFound, email)
}

func (s *FileStore) Create(ctx context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range accounts {
		if existing.Email == account.Email {
			return fmt.Errorf("%w: %s", consts.ErrAccountExists, account.Email)
		}
	}
	return s.save(append(accounts, s.normalize(account)), "create")
}

func (s *FileStore) Update(ctx context.Context, email string, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return err
	}

	pos := -1
	for i, existing := range accounts {
		if existing.Email == email {
			pos = i
			continue
		}
		if existing.Email == account.Email {
			// Renaming onto another record would silently drop it.
			return fmt.Errorf("%w: %s", consts.ErrAccountExists, account.Email)
		}
	}
	if pos < 0 {
		return fmt.Errorf("%w: %s", consts.ErrAccountNotFound, email)
	}

	accounts[pos] = s.normalize(account)
	return s.save(accounts, "update")
}

func (s *FileStore) Delete(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return err
	}

	kept := accounts[:0]
	found := false
	for _, account := range accounts {
		if account.Email == email {
			found = true
			continue
		}
		kept = append(kept, account)
	}
	if !found {
		return fmt.Errorf("%w: %s", consts.ErrAccountNotFound, email)
	}
	return s.save(kept, "delete")
}

func (s *FileStore) ReplaceAll(ctx context.Context, accounts []Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := make([]Account, len(accounts))
	for i, account := range accounts {
		normalized[i] = s.normalize(account)
	}
	return s.save(normalized, "replace_all")
}

func (s *FileStore) Close() error {
	return nil
}

// normalize maps a client ID equal to the configured default back to empty,
// so "uses the default" survives round trips even when imports spell the
// default out.
func (s *FileStore) normalize(account Account) Account {
	if account.ClientID == s.defaultClientID {
		account.ClientID = ""
	}
	return account
}

// load reads and parses the account file. Unparseable lines are logged and
// skipped, never fatal. A missing file is an empty account set.
func (s *FileStore) load() ([]Account, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debugf("store: account file %s does not exist yet", s.path)
			return []Account{}, nil
		}
		return nil, fmt.Errorf("%w: %v", consts.ErrStoreLoadFailed, err)
	}

	var accounts []Account
	for lineNum, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		account, err := ParseLine(line)
		if err != nil {
			logger.Warnf("store: skipping %s line %d: %v", s.path, lineNum+1, err)
			continue
		}
		accounts = append(accounts, s.normalize(account))
	}
	if accounts == nil {
		accounts = []Account{}
	}
	return accounts, nil
}

// save writes the account set atomically, preserving any comment header the
// file already carries.
func (s *FileStore) save(accounts []Account, operation string) error {
	err := s.writeFile(accounts)
	if err != nil {
		metrics.StoreOperationsTotal.WithLabelValues("file", operation, "failure").Inc()
		return fmt.Errorf("%w: %v", consts.ErrStoreSaveFailed, err)
	}
	metrics.StoreOperationsTotal.WithLabelValues("file", operation, "success").Inc()
	metrics.AccountsTotal.Set(float64(len(accounts)))
	return nil
}

func (s *FileStore) writeFile(accounts []Account) error {
	content := RenderAccountsFile(accounts, s.defaultClientID, s.readHeader())

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".accounts-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// readHeader returns the leading comment block of the current file, or nil
// when the file is missing or starts with data.
func (s *FileStore) readHeader() []string {
	content, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}

	var header []string
	for _, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			header = append(header, line)
			continue
		}
		break
	}

	// Trim trailing blank lines so the render step controls spacing.
	for len(header) > 0 && strings.TrimSpace(header[len(header)-1]) == "" {
		header = header[:len(header)-1]
	}
	if len(header) == 0 {
		return nil
	}
	return append(header, "")
}
