// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package tokens

import (
	"strings"
	"testing"
)

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if len(token) < MinTokenLength {
		t.Fatalf("generated token too short: %d chars", len(token))
	}
	if strings.ContainsAny(token, "+/=") {
		t.Fatalf("token is not URL-safe: %s", token)
	}

	again, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if token == again {
		t.Fatal("expected unique tokens per invocation")
	}
}

func TestHashToken(t *testing.T) {
	token := "test-token-12345"

	hash, err := HashToken(token)
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}
	if hash == "" || hash == token {
		t.Fatal("HashToken returned invalid hash")
	}
	if len(strings.Split(hash, ":")) != 2 {
		t.Fatalf("invalid hash format: %s", hash)
	}
}

func TestVerifyToken(t *testing.T) {
	token := "test-token-12345"

	hash, err := HashToken(token)
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}

	valid, err := VerifyToken(token, hash)
	if err != nil {
		t.Fatalf("VerifyToken returned error: %v", err)
	}
	if !valid {
		t.Fatal("expected token to verify")
	}

	valid, err = VerifyToken("wrong-token", hash)
	if err != nil {
		t.Fatalf("VerifyToken returned error: %v", err)
	}
	if valid {
		t.Fatal("expected wrong token to fail verification")
	}
}

func TestUniqueHashes(t *testing.T) {
	token := "test-token-12345"

	hash1, err := HashToken(token)
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}
	hash2, err := HashToken(token)
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}

	if hash1 == hash2 {
		t.Fatal("expected unique hashes per invocation")
	}

	if ok, _ := VerifyToken(token, hash1); !ok {
		t.Fatal("hash1 should verify")
	}
	if ok, _ := VerifyToken(token, hash2); !ok {
		t.Fatal("hash2 should verify")
	}
}

func TestLookupKeyDeterministic(t *testing.T) {
	if LookupKey("abc") != LookupKey("abc") {
		t.Fatal("lookup key must be deterministic")
	}
	if LookupKey("abc") == LookupKey("abd") {
		t.Fatal("lookup keys for different tokens should differ")
	}
}
