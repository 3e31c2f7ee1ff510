// Package secrets keeps a player's unrevealed move and nonce between the
// commit and reveal steps of the CLI.
//
// Secrets live in the OS keychain. Where no keychain is available (headless
// Linux without a secret service, containers) they fall back to a JSON file
// readable only by the current user.
package secrets

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"
	"go.uber.org/multierr"

	"github.com/MJE43/rps-commit-reveal/internal/commit"
)

// DefaultService is the keychain service name used by the rps CLI.
const DefaultService = "rps-commit-reveal"

// ErrNotFound is returned when no pending reveal is stored for an account.
var ErrNotFound = keyring.ErrNotFound

// Pending is a committed but not yet revealed move.
type Pending struct {
	GameID    uint64       `json:"game_id"`
	Move      commit.Move  `json:"move"`
	Nonce     commit.Nonce `json:"nonce"`
	Hash      common.Hash  `json:"hash"`
	CreatedAt time.Time    `json:"created_at"`
}

// Vault stores one Pending per account.
type Vault struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

func NewVault(service, fallbackPath string) *Vault {
	if strings.TrimSpace(service) == "" {
		service = DefaultService
	}
	return &Vault{service: service, fallbackPath: fallbackPath}
}

// DefaultFallbackPath is ~/.config/rps/pending.json, or a relative path when
// the config dir cannot be resolved.
func DefaultFallbackPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".rps", "pending.json")
	}
	return filepath.Join(dir, "rps", "pending.json")
}

func (v *Vault) key(account string) string {
	return account + "/pending"
}

// Save stores p for account, replacing any earlier pending reveal. The hash
// is recomputed from the move and nonce.
func (v *Vault) Save(account string, p Pending) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return errors.New("secrets: account is required")
	}
	if !p.Move.Valid() {
		return errors.Errorf("secrets: cannot store move %s", p.Move)
	}
	p.Hash = commit.HashMove(p.Move, p.Nonce)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "secrets: encode pending")
	}

	err = keyring.Set(v.service, v.key(account), string(raw))
	if err == nil {
		return nil
	}
	if !isKeyringUnavailable(err) {
		return errors.Wrap(err, "secrets: keyring set")
	}
	return v.setFallback(account, string(raw))
}

// Load returns the pending reveal for account or ErrNotFound.
func (v *Vault) Load(account string) (Pending, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return Pending{}, errors.New("secrets: account is required")
	}

	raw, err := keyring.Get(v.service, v.key(account))
	if err != nil {
		if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
			return Pending{}, errors.Wrap(err, "secrets: keyring get")
		}
		var ferr error
		if raw, ferr = v.getFallback(account); ferr != nil {
			if errors.Is(err, keyring.ErrNotFound) || errors.Is(ferr, keyring.ErrNotFound) {
				return Pending{}, ErrNotFound
			}
			return Pending{}, ferr
		}
	}

	var p Pending
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Pending{}, errors.Wrap(err, "secrets: decode pending")
	}
	if commit.HashMove(p.Move, p.Nonce) != p.Hash {
		return Pending{}, errors.Errorf("secrets: stored reveal for %s does not match its hash", account)
	}
	return p, nil
}

// Delete forgets the pending reveal for account. Deleting a missing entry is
// not an error.
func (v *Vault) Delete(account string) error {
	var err error
	if kerr := keyring.Delete(v.service, v.key(account)); kerr != nil &&
		!errors.Is(kerr, keyring.ErrNotFound) && !isKeyringUnavailable(kerr) {
		err = multierr.Append(err, errors.Wrap(kerr, "secrets: keyring delete"))
	}
	return multierr.Append(err, v.deleteFallback(account))
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available") ||
		strings.Contains(msg, "exec: \"security\"")
}

type fallbackFile map[string]string

func (v *Vault) setFallback(account, value string) error {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return errors.New("secrets: keyring unavailable and no fallback path configured")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[account] = value
	return v.writeFallbackUnlocked(data)
}

func (v *Vault) getFallback(account string) (string, error) {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return "", errors.New("secrets: fallback path not configured")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[account]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return val, nil
}

func (v *Vault) deleteFallback(account string) error {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[account]; !ok {
		return nil
	}
	delete(data, account)
	return v.writeFallbackUnlocked(data)
}

func (v *Vault) readFallbackUnlocked() (fallbackFile, error) {
	out := fallbackFile{}
	raw, err := os.ReadFile(v.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, errors.Wrap(err, "secrets: read fallback")
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "secrets: decode fallback")
	}
	return out, nil
}

func (v *Vault) writeFallbackUnlocked(data fallbackFile) error {
	if err := os.MkdirAll(filepath.Dir(v.fallbackPath), 0o700); err != nil {
		return errors.Wrap(err, "secrets: mkdir fallback dir")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "secrets: encode fallback")
	}
	if err := os.WriteFile(v.fallbackPath, raw, 0o600); err != nil {
		return errors.Wrap(err, "secrets: write fallback")
	}
	return nil
}
