// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package certs

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// DefaultCAValidity is the lifetime of a newly generated root CA.
	DefaultCAValidity = 10 * 365 * 24 * time.Hour

	// DefaultLeafValidity is the lifetime of server and client leaves.
	DefaultLeafValidity = 365 * 24 * time.Hour

	// InternalDomain is appended to service names for their DNS SAN.
	InternalDomain = "botserver.local"

	// ClientName is the directory and common name of the client certificate.
	ClientName = "botserver"

	keyPerm  fs.FileMode = 0600
	certPerm fs.FileMode = 0644
	dirPerm  fs.FileMode = 0755

	backdate = time.Hour
)

// DefaultServices lists every service that receives a server leaf.
var DefaultServices = []string{
	"vault", "postgres", "redis", "minio", "qdrant", "llm",
	"embedding", "directory", "email", "meet", "alm", "api",
}

// =============================================================================
// Report
// =============================================================================

// Report lists the artifacts Ensure created and the ones it found in place.
// Entries are paths relative to the authority directory.
type Report struct {
	Created []string
	Reused  []string
}

func (r *Report) created(dir, path string) { r.Created = append(r.Created, rel(dir, path)) }
func (r *Report) reused(dir, path string)  { r.Reused = append(r.Reused, rel(dir, path)) }

func rel(dir, path string) string {
	if p, err := filepath.Rel(dir, path); err == nil {
		return p
	}
	return path
}

// =============================================================================
// Authority
// =============================================================================

// Authority issues the stack's certificates from one root CA on disk.
type Authority struct {
	// Dir is the certificate root, normally <stack>/conf/system/certificates.
	Dir string

	// Services receive a server leaf each. Defaults to DefaultServices.
	Services []string

	CAValidity   time.Duration
	LeafValidity time.Duration

	// Now is the clock; nil means time.Now.
	Now func() time.Time

	Logger *slog.Logger

	caCert *x509.Certificate
	caKey  crypto.Signer
	caPEM  []byte
}

// NewAuthority returns an Authority rooted at dir with the default service
// catalog and validity periods.
func NewAuthority(dir string, logger *slog.Logger) *Authority {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authority{
		Dir:          dir,
		Services:     append([]string(nil), DefaultServices...),
		CAValidity:   DefaultCAValidity,
		LeafValidity: DefaultLeafValidity,
		Logger:       logger,
	}
}

// CACertPath returns the path of the root certificate.
func (a *Authority) CACertPath() string { return filepath.Join(a.Dir, "ca", "ca.crt") }

// CAKeyPath returns the path of the root private key.
func (a *Authority) CAKeyPath() string { return filepath.Join(a.Dir, "ca", "ca.key") }

// ServerPaths returns the certificate and key paths of a service leaf.
func (a *Authority) ServerPaths(service string) (cert, key string) {
	dir := filepath.Join(a.Dir, service)
	return filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key")
}

// ClientPaths returns the certificate and key paths of the client leaf.
func (a *Authority) ClientPaths() (cert, key string) {
	dir := filepath.Join(a.Dir, ClientName)
	return filepath.Join(dir, "client.crt"), filepath.Join(dir, "client.key")
}

// Ensure makes the certificate set complete.
//
// # Description
//
// Loads the root CA when both of its files exist and generates one when
// neither does. Then issues every missing service leaf and the client
// certificate. Existing leaves are not touched, so running Ensure twice
// leaves every file byte-identical.
//
// # Outputs
//
//   - *Report: created and reused artifacts.
//   - error: ErrIncompleteCA when only one CA file exists; I/O or parse
//     errors otherwise. Nothing is overwritten on error.
func (a *Authority) Ensure() (*Report, error) {
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	if len(a.Services) == 0 {
		a.Services = append([]string(nil), DefaultServices...)
	}
	report := &Report{}

	if err := a.ensureCA(report); err != nil {
		return report, err
	}
	for _, svc := range a.Services {
		if err := a.ensureServer(svc, report); err != nil {
			return report, fmt.Errorf("service %s: %w", svc, err)
		}
	}
	if err := a.ensureClient(report); err != nil {
		return report, fmt.Errorf("client certificate: %w", err)
	}

	a.Logger.Info("Certificates ready",
		"dir", a.Dir,
		"created", len(report.Created),
		"reused", len(report.Reused))
	return report, nil
}

func (a *Authority) ensureCA(report *Report) error {
	certPath, keyPath := a.CACertPath(), a.CAKeyPath()
	haveCert, haveKey := exists(certPath), exists(keyPath)

	switch {
	case haveCert && haveKey:
		if err := a.loadCA(certPath, keyPath); err != nil {
			return err
		}
		report.reused(a.Dir, certPath)
		report.reused(a.Dir, keyPath)
		return nil
	case haveCert || haveKey:
		return fmt.Errorf("%w (cert=%t key=%t in %s)", ErrIncompleteCA, haveCert, haveKey, filepath.Dir(certPath))
	}

	key, err := newKey()
	if err != nil {
		return err
	}
	now := a.now()
	tmpl := &x509.Certificate{
		SerialNumber: mustSerial(),
		Subject: pkix.Name{
			Organization: []string{"BotServer Internal CA"},
			CommonName:   "BotServer Root CA",
			Country:      []string{"BR"},
		},
		NotBefore:             now.Add(-backdate),
		NotAfter:              now.Add(a.CAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		return fmt.Errorf("create root CA: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return err
	}

	if err := writePair(certPath, der, keyPath, key); err != nil {
		return err
	}
	a.caCert, a.caKey, a.caPEM = cert, key, encodeCert(der)
	report.created(a.Dir, certPath)
	report.created(a.Dir, keyPath)
	a.Logger.Info("Generated root CA", "path", certPath, "expires", cert.NotAfter.Format(time.DateOnly))
	return nil
}

func (a *Authority) loadCA(certPath, keyPath string) error {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return err
	}
	cert, err := parseCert(certPEM)
	if err != nil {
		return fmt.Errorf("%s: %w", certPath, err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return err
	}
	key, err := parseKey(keyPEM)
	if err != nil {
		return fmt.Errorf("%s: %w", keyPath, err)
	}
	if !publicKeysEqual(cert.PublicKey, key.Public()) {
		return fmt.Errorf("%s does not match %s", keyPath, certPath)
	}
	a.caCert, a.caKey, a.caPEM = cert, key, certPEM
	return nil
}

func (a *Authority) ensureServer(svc string, report *Report) error {
	certPath, keyPath := a.ServerPaths(svc)
	if exists(certPath) && exists(keyPath) {
		report.reused(a.Dir, certPath)
	} else {
		tmpl := a.leafTemplate(svc + "." + InternalDomain)
		tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
		tmpl.DNSNames = []string{"localhost", svc, svc + "." + InternalDomain}
		tmpl.IPAddresses = []net.IP{net.ParseIP("127.0.0.1")}
		if err := a.issue(tmpl, certPath, keyPath); err != nil {
			return err
		}
		report.created(a.Dir, certPath)
	}
	return a.ensureCACopy(filepath.Dir(certPath), report)
}

func (a *Authority) ensureClient(report *Report) error {
	certPath, keyPath := a.ClientPaths()
	if exists(certPath) && exists(keyPath) {
		report.reused(a.Dir, certPath)
		return nil
	}
	tmpl := a.leafTemplate(ClientName)
	tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	if err := a.issue(tmpl, certPath, keyPath); err != nil {
		return err
	}
	report.created(a.Dir, certPath)
	return nil
}

func (a *Authority) ensureCACopy(dir string, report *Report) error {
	path := filepath.Join(dir, "ca.crt")
	if exists(path) {
		return nil
	}
	if err := writeFile(path, a.caPEM, certPerm); err != nil {
		return err
	}
	report.created(a.Dir, path)
	return nil
}

func (a *Authority) leafTemplate(cn string) *x509.Certificate {
	now := a.now()
	return &x509.Certificate{
		SerialNumber: mustSerial(),
		Subject: pkix.Name{
			Organization: []string{"BotServer"},
			CommonName:   cn,
		},
		NotBefore:             now.Add(-backdate),
		NotAfter:              now.Add(a.LeafValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		BasicConstraintsValid: true,
	}
}

func (a *Authority) issue(tmpl *x509.Certificate, certPath, keyPath string) error {
	key, err := newKey()
	if err != nil {
		return err
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, a.caCert, key.Public(), a.caKey)
	if err != nil {
		return fmt.Errorf("sign %s: %w", tmpl.Subject.CommonName, err)
	}
	return writePair(certPath, der, keyPath, key)
}

func (a *Authority) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// =============================================================================
// Encoding helpers
// =============================================================================

func newKey() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

func mustSerial() *big.Int {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		panic(fmt.Sprintf("certs: read random serial: %v", err))
	}
	return n
}

func encodeCert(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func encodeKey(key crypto.Signer) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

func parseCert(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, ErrInvalidPEM
	}
	return x509.ParseCertificate(block.Bytes)
}

func parseKey(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPEM
	}
	var (
		key any
		err error
	)
	switch block.Type {
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, err
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, ErrUnsupportedKey
	}
	return signer, nil
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	ka, err := x509.MarshalPKIXPublicKey(a)
	if err != nil {
		return false
	}
	kb, err := x509.MarshalPKIXPublicKey(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ka, kb)
}

// writePair writes the key first so a crash never leaves a certificate
// without its key.
func writePair(certPath string, der []byte, keyPath string, key crypto.Signer) error {
	keyPEM, err := encodeKey(key)
	if err != nil {
		return err
	}
	if err := writeFile(keyPath, keyPEM, keyPerm); err != nil {
		return err
	}
	return writeFile(certPath, encodeCert(der), certPerm)
}

func writeFile(path string, data []byte, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return err
	}
	return os.Chmod(path, perm)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}
