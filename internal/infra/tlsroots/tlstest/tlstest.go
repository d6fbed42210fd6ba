// Package tlstest issues throwaway certificates for mutual TLS tests.
package tlstest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var oidEmailAddress = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}

// Bundle is a CA with one server and one client certificate, written as
// PEM files under Dir.
type Bundle struct {
	Dir string

	CAFile         string
	ServerCertFile string
	ServerKeyFile  string
	ClientCertFile string
	ClientKeyFile  string

	CA     *x509.Certificate
	caKey  *ecdsa.PrivateKey
	serial int64
}

// New creates a bundle whose client certificate carries clientEmail as
// subject emailAddress. The server certificate is valid for localhost,
// 127.0.0.1 and ::1.
func New(t testing.TB, clientEmail string) *Bundle {
	t.Helper()

	b := &Bundle{Dir: t.TempDir(), serial: 1}

	key := newKey(t)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(b.serial),
		Subject:               pkix.Name{CommonName: "jetconf test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("tlstest: create CA: %v", err)
	}
	b.CA, err = x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("tlstest: parse CA: %v", err)
	}
	b.caKey = key
	b.CAFile = filepath.Join(b.Dir, "ca.pem")
	writePEM(t, b.CAFile, "CERTIFICATE", der)

	b.ServerCertFile, b.ServerKeyFile = b.issue(t, "server", &x509.Certificate{
		Subject:     pkix.Name{CommonName: "localhost"},
		DNSNames:    []string{"localhost"},
		IPAddresses: []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	b.ClientCertFile, b.ClientKeyFile = b.IssueClient(t, "client", clientEmail)

	return b
}

// IssueClient issues another client certificate signed by the bundle CA.
func (b *Bundle) IssueClient(t testing.TB, name, email string) (certFile, keyFile string) {
	t.Helper()
	subject := pkix.Name{CommonName: name}
	if email != "" {
		subject.ExtraNames = []pkix.AttributeTypeAndValue{{Type: oidEmailAddress, Value: email}}
	}
	return b.issue(t, name, &x509.Certificate{
		Subject:     subject,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
}

func (b *Bundle) issue(t testing.TB, name string, tmpl *x509.Certificate) (certFile, keyFile string) {
	t.Helper()
	b.serial++
	tmpl.SerialNumber = big.NewInt(b.serial)
	tmpl.NotBefore = time.Now().Add(-time.Hour)
	tmpl.NotAfter = time.Now().Add(24 * time.Hour)
	tmpl.KeyUsage = x509.KeyUsageDigitalSignature

	key := newKey(t)
	der, err := x509.CreateCertificate(rand.Reader, tmpl, b.CA, &key.PublicKey, b.caKey)
	if err != nil {
		t.Fatalf("tlstest: issue %s: %v", name, err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("tlstest: marshal %s key: %v", name, err)
	}

	certFile = filepath.Join(b.Dir, name+".crt")
	keyFile = filepath.Join(b.Dir, name+".key")
	writePEM(t, certFile, "CERTIFICATE", der)
	writePEM(t, keyFile, "EC PRIVATE KEY", keyDER)
	return certFile, keyFile
}

func newKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("tlstest: generate key: %v", err)
	}
	return key
}

func writePEM(t testing.TB, path, blockType string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("tlstest: write %s: %v", path, err)
	}
}
