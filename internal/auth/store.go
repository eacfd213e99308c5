package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// DJRecord is one DJ credential entry. Lower Priority means a higher
// claim on the active slot during auto-switch.
type DJRecord struct {
	Name     string `json:"name"`
	KeyHash  string `json:"key_hash"`
	Priority int    `json:"priority"`
}

// VJRecord is one operator credential entry.
type VJRecord struct {
	Name    string `json:"name"`
	KeyHash string `json:"key_hash"`
}

// Store holds the credential tables loaded from the auth config file.
// The store is read-only after Load and safe for concurrent use.
type Store struct {
	DJs         map[string]DJRecord `json:"djs"`
	VJOperators map[string]VJRecord `json:"vj_operators"`
}

// Load reads the JSON credential file at path.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: read %q: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("auth: parse %q: %w", path, err)
	}
	return s, nil
}

// Parse decodes a credential file's contents.
func Parse(data []byte) (*Store, error) {
	s := &Store{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	if s.DJs == nil {
		s.DJs = map[string]DJRecord{}
	}
	if s.VJOperators == nil {
		s.VJOperators = map[string]VJRecord{}
	}
	return s, nil
}

// VerifyDJ returns the DJ record for id iff key matches its stored hash.
func (s *Store) VerifyDJ(id, key string) (DJRecord, bool) {
	rec, ok := s.DJs[id]
	if !ok || !VerifyPassword(key, rec.KeyHash) {
		return DJRecord{}, false
	}
	return rec, true
}

// VerifyVJ returns the operator record for id iff key matches its stored
// hash.
func (s *Store) VerifyVJ(id, key string) (VJRecord, bool) {
	rec, ok := s.VJOperators[id]
	if !ok || !VerifyPassword(key, rec.KeyHash) {
		return VJRecord{}, false
	}
	return rec, true
}

// CheckHashed verifies that every stored secret carries a recognized hash
// prefix. The returned error joins one entry per offending record; a
// server that requires authentication must refuse to start on a non-nil
// result.
func (s *Store) CheckHashed() error {
	var errs []error
	for id, rec := range s.DJs {
		if !HashedSecret(rec.KeyHash) {
			errs = append(errs, fmt.Errorf("dj %q has a plaintext key_hash; rehash it with mcavkeys", id))
		}
	}
	for id, rec := range s.VJOperators {
		if !HashedSecret(rec.KeyHash) {
			errs = append(errs, fmt.Errorf("vj operator %q has a plaintext key_hash; rehash it with mcavkeys", id))
		}
	}
	return errors.Join(errs...)
}

// Save writes the store as indented JSON to path. Used by the mcavkeys
// init and rehash commands.
func (s *Store) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("auth: write %q: %w", path, err)
	}
	return nil
}
