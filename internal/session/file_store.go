package session

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// FileStore keeps the session in a JSON file. With a passphrase the payload is sealed
// with secretbox under an scrypt-derived key.
type FileStore struct {
	path       string
	passphrase []byte
}

type sealedFile struct {
	Version int    `json:"v"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Box     []byte `json:"box"`
}

func NewFileStore(path, passphrase string) *FileStore {
	fs := &FileStore{path: path}
	if passphrase != "" {
		fs.passphrase = []byte(passphrase)
	}
	return fs
}

func (f *FileStore) Save(_ context.Context, s Session) error {
	raw, err := encode(s)
	if err != nil {
		return err
	}
	if f.passphrase != nil {
		raw, err = f.seal(raw)
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}

func (f *FileStore) Load(context.Context) (*Session, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if f.passphrase != nil {
		opened, ok := f.open(raw)
		if !ok {
			return nil, nil
		}
		raw = opened
	}
	return decode(raw), nil
}

func (f *FileStore) Clear(context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

func (f *FileStore) deriveKey(salt []byte) (*[32]byte, error) {
	derived, err := scrypt.Key(f.passphrase, salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	var key [32]byte
	copy(key[:], derived)
	return &key, nil
}

func (f *FileStore) seal(plain []byte) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("session salt: %w", err)
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("session nonce: %w", err)
	}
	key, err := f.deriveKey(salt)
	if err != nil {
		return nil, err
	}
	box := secretbox.Seal(nil, plain, &nonce, key)
	return json.Marshal(sealedFile{Version: 1, Salt: salt, Nonce: nonce[:], Box: box})
}

func (f *FileStore) open(raw []byte) ([]byte, bool) {
	var sealed sealedFile
	if err := json.Unmarshal(raw, &sealed); err != nil || sealed.Version != 1 || len(sealed.Nonce) != 24 {
		return nil, false
	}
	key, err := f.deriveKey(sealed.Salt)
	if err != nil {
		return nil, false
	}
	var nonce [24]byte
	copy(nonce[:], sealed.Nonce)
	return secretbox.Open(nil, sealed.Box, &nonce, key)
}
