package tlsroots

import (
	"crypto/x509"
	"encoding/asn1"
)

// oidEmailAddress is the PKCS #9 emailAddress attribute of a subject DN.
var oidEmailAddress = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}

// CertUser returns the user name a client certificate identifies: the
// subject emailAddress attribute, else the first SAN email address, else
// the subject common name. A nil certificate yields "".
func CertUser(cert *x509.Certificate) string {
	if cert == nil {
		return ""
	}
	for _, atv := range cert.Subject.Names {
		if atv.Type.Equal(oidEmailAddress) {
			if s, ok := atv.Value.(string); ok && s != "" {
				return s
			}
		}
	}
	if len(cert.EmailAddresses) > 0 {
		return cert.EmailAddresses[0]
	}
	return cert.Subject.CommonName
}
