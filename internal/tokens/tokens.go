// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

// Package tokens generates and verifies the single-use approval tokens
// that gate draft state transitions. Only the salted scrypt hash of a
// token is ever persisted; the plaintext exists in the outbound
// notification and nowhere else.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// Scrypt parameters tuned for approval token hashing; trading off latency
// vs brute-force resistance.
const (
	scryptN       = 32768
	scryptR       = 8
	scryptP       = 1
	scryptKeyLen  = 32
	scryptSaltLen = 16

	tokenBytes = 32

	// MinTokenLength is a cheap sanity floor applied before any database
	// work happens on a presented token. Generated tokens are 43 chars.
	MinTokenLength = 20
)

// GenerateToken returns a fresh URL-safe approval token.
func GenerateToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashToken hashes the provided token using scrypt and returns a
// salt:hash string suitable for storage.
func HashToken(token string) (string, error) {
	salt := make([]byte, scryptSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	derived, err := scrypt.Key([]byte(token), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("scrypt hash: %w", err)
	}

	return fmt.Sprintf("%s:%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(derived),
	), nil
}

// VerifyToken checks the provided token against the stored salt:hash in
// constant time.
func VerifyToken(token, storedHash string) (bool, error) {
	parts := strings.Split(storedHash, ":")
	if len(parts) != 2 {
		return false, fmt.Errorf("invalid hash format")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}
	hashBytes, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}

	derived, err := scrypt.Key([]byte(token), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return false, fmt.Errorf("scrypt hash: %w", err)
	}

	return subtle.ConstantTimeCompare(derived, hashBytes) == 1, nil
}

// LookupKey returns a deterministic digest used to locate a draft row by
// token without storing the plaintext. The salted hash is still verified
// afterwards; the lookup key only narrows the search.
func LookupKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawStdEncoding.EncodeToString(sum[:])
}
