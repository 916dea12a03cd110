package auth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Signing algorithms accepted by the API.
const (
	AlgHS256 = "HS256"
	AlgRS256 = "RS256"
)

// DefaultKID is assumed when a token header carries no kid.
const DefaultKID = "v1"

type keyID struct {
	issuer string
	kid    string
}

type verificationKey struct {
	alg string
	key interface{}
}

// KeyStore holds verification keys per issuer and kid. Rotation is done by
// loading the new kid next to the old one and dropping the old one on the
// next deploy.
type KeyStore struct {
	keys map[keyID]verificationKey
}

func NewKeyStore() *KeyStore {
	return &KeyStore{keys: make(map[keyID]verificationKey)}
}

// LoadHS256Key registers a shared secret.
func (ks *KeyStore) LoadHS256Key(issuer, kid string, secret []byte) {
	ks.keys[keyID{issuer, kid}] = verificationKey{alg: AlgHS256, key: secret}
}

// LoadRS256Key registers a PEM public key. Literal "\n" sequences are accepted
// because the PEM usually arrives through a single-line env var.
func (ks *KeyStore) LoadRS256Key(issuer, kid string, publicKeyPEM string) error {
	normalized := strings.TrimSpace(strings.ReplaceAll(publicKeyPEM, `\n`, "\n"))

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(normalized))
	if err != nil {
		return fmt.Errorf("failed to parse RSA public key for issuer %s: %w", issuer, err)
	}
	ks.keys[keyID{issuer, kid}] = verificationKey{alg: AlgRS256, key: publicKey}
	return nil
}

// lookup returns the key for issuer/kid only when it was loaded for alg, so
// an HS256 validator never receives an RSA key and vice versa.
func (ks *KeyStore) lookup(issuer, kid, alg string) (interface{}, bool) {
	k, ok := ks.keys[keyID{issuer, kid}]
	if !ok || k.alg != alg {
		return nil, false
	}
	return k.key, true
}

// KIDs lists the key ids loaded for an issuer.
func (ks *KeyStore) KIDs(issuer string) []string {
	var kids []string
	for id := range ks.keys {
		if id.issuer == issuer {
			kids = append(kids, id.kid)
		}
	}
	sort.Strings(kids)
	return kids
}
