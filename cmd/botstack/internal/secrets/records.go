// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strconv"
)

// Record paths relative to the KV mount.
const (
	PathTables     = "gbo/tables"
	PathDrive      = "gbo/drive"
	PathCache      = "gbo/cache"
	PathDirectory  = "gbo/directory"
	PathLLM        = "gbo/llm"
	PathEmail      = "gbo/email"
	PathEncryption = "gbo/encryption"
)

// RecordPaths lists the seeded records in write order.
var RecordPaths = []string{
	PathTables, PathDrive, PathCache, PathDirectory, PathLLM, PathEmail, PathEncryption,
}

// Defaults used in generated records.
const (
	DefaultDBName      = "botserver"
	DefaultDBUser      = "gbuser"
	DefaultDBPort      = 5432
	DefaultDrivePort   = 9000
	DefaultCachePort   = 6379
	DefaultEmailPort   = 25
	DefaultDirectory   = "https://localhost:8080"
	DefaultLLMURL      = "https://localhost:8081"
	DefaultHost        = "localhost"
	DefaultEmailUser   = "admin"
	directoryKeyLength = 32
)

// Seed carries the passwords generated at the start of a bootstrap run.
// They are written only into records that do not exist yet.
type Seed struct {
	DBPassword    string
	DriveSecret   string
	CachePassword string
}

// NewSeed generates a seed with fresh random passwords.
func NewSeed() Seed {
	return Seed{
		DBPassword:    GeneratePassword(32),
		DriveSecret:   GeneratePassword(32),
		CachePassword: GeneratePassword(32),
	}
}

// DefaultRecords builds the records written on first bootstrap.
func DefaultRecords(seed Seed) map[string]map[string]string {
	return map[string]map[string]string{
		PathTables: {
			"host":     DefaultHost,
			"port":     strconv.Itoa(DefaultDBPort),
			"database": DefaultDBName,
			"username": DefaultDBUser,
			"password": seed.DBPassword,
		},
		PathDrive: {
			"server":    DefaultHost,
			"port":      strconv.Itoa(DefaultDrivePort),
			"accesskey": GeneratePassword(20),
			"secret":    seed.DriveSecret,
		},
		PathCache: {
			"host":     DefaultHost,
			"port":     strconv.Itoa(DefaultCachePort),
			"password": seed.CachePassword,
		},
		PathDirectory: {
			"url":           DefaultDirectory,
			"project_id":    "",
			"client_id":     "",
			"client_secret": "",
			"masterkey":     GeneratePassword(directoryKeyLength),
		},
		PathLLM: {
			"url":   DefaultLLMURL,
			"local": "true",
		},
		PathEmail: {
			"server":   DefaultHost,
			"port":     strconv.Itoa(DefaultEmailPort),
			"username": DefaultEmailUser,
			"password": GeneratePassword(24),
		},
		PathEncryption: {
			"master_key": randomHex(32),
		},
	}
}

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GeneratePassword returns n characters drawn uniformly from [A-Za-z0-9]
// using crypto/rand.
func GeneratePassword(n int) string {
	max := big.NewInt(int64(len(passwordAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("secrets: crypto/rand failed: " + err.Error())
		}
		out[i] = passwordAlphabet[idx.Int64()]
	}
	return string(out)
}

func randomHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		panic("secrets: crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
