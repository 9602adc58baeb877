package proxy

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// caValidity is how long the ephemeral CA is valid.
const caValidity = 24 * time.Hour

// CA is an in-memory certificate authority for one crawl. goproxy signs the
// leaf certificates of tunnelled hosts with it, and the CA caches them so
// every worker of the crawl reuses the same leaf per host.
type CA struct {
	cert    *x509.Certificate
	keyPair tls.Certificate

	mu     sync.Mutex
	leaves map[string]*tls.Certificate
}

// NewCA generates a fresh CA key pair.
func NewCA() (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "scopecrawl ephemeral CA", Organization: []string{"scopecrawl"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(caValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return &CA{
		cert: cert,
		keyPair: tls.Certificate{
			Certificate: [][]byte{der},
			PrivateKey:  key,
			Leaf:        cert,
		},
		leaves: make(map[string]*tls.Certificate),
	}, nil
}

// Certificate returns the CA certificate.
func (ca *CA) Certificate() *x509.Certificate { return ca.cert }

// CertPool returns a pool trusting only this CA.
func (ca *CA) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(ca.cert)
	return pool
}

// Fetch returns the cached leaf for host or issues one with gen. It
// implements goproxy.CertStorage.
func (ca *CA) Fetch(host string, gen func() (*tls.Certificate, error)) (*tls.Certificate, error) {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	if leaf, ok := ca.leaves[host]; ok {
		return leaf, nil
	}
	leaf, err := gen()
	if err != nil {
		return nil, fmt.Errorf("failed to issue certificate for %s: %w", host, err)
	}
	ca.leaves[host] = leaf
	return leaf, nil
}
