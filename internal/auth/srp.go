package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// SRP-6a client side for the federated identity pool. The pool speaks the
// standard Cognito wire protocol, so the group parameters, the hex padding
// rules, the HKDF info string and the timestamp format below all follow that
// protocol and must not drift.

// srpNHex is the RFC 3526 3072-bit MODP group prime.
const srpNHex = "" +
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74" +
	"020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F1437" +
	"4FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF05" +
	"98DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB" +
	"9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF695581718" +
	"3995497CEA956AE515D2261898FA051015728E5A8AAAC42DAD33170D04507A33" +
	"A85521ABDF1CBA64ECFB850458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7" +
	"ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6BF12FFA06D98A0864" +
	"D87602733EC86A64521F2B18177B200CBBE117577A615D6C770988C0BAD946E2" +
	"08E24FA074E5AB3143DB5BFCE0FD108E4B82D120A93AD2CAFFFFFFFFFFFFFFFF"

const (
	derivedKeyInfo  = "Caldera Derived Key"
	derivedKeySize  = 16
	timestampLayout = "Mon Jan 2 15:04:05 UTC 2006"
)

var (
	srpN *big.Int
	srpG = big.NewInt(2)
	srpK *big.Int
)

func init() {
	srpN = mustHexBig(srpNHex)
	kHash, err := hexHash("00" + srpNHex + "0" + "2")
	if err != nil {
		panic(err)
	}
	srpK = mustHexBig(kHash)
}

// srpSession holds the client's ephemeral key pair for one login.
type srpSession struct {
	poolName string
	a        *big.Int
	bigA     *big.Int
}

// newSRPSession derives the pool name from the user pool id (the part after
// the underscore) and generates the ephemeral pair.
func newSRPSession(userPoolID string) (*srpSession, error) {
	_, poolName, ok := strings.Cut(userPoolID, "_")
	if !ok || poolName == "" {
		return nil, fmt.Errorf("malformed user pool id %q", userPoolID)
	}
	s := &srpSession{poolName: poolName}

	limit := new(big.Int).Lsh(big.NewInt(1), 256)
	for {
		a, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return nil, fmt.Errorf("generate srp a: %w", err)
		}
		bigA := new(big.Int).Exp(srpG, a, srpN)
		if bigA.Sign() != 0 {
			s.a, s.bigA = a, bigA
			return s, nil
		}
	}
}

// srpA is the hex-encoded public ephemeral sent as SRP_A.
func (s *srpSession) srpA() string {
	return s.bigA.Text(16)
}

// passwordAuthKey runs the SRP shared-secret computation and derives the
// 16-byte HKDF key used to sign the password claim.
func (s *srpSession) passwordAuthKey(userID, password, saltHex string, b *big.Int) ([]byte, error) {
	u, err := hexBigHash(padBig(s.bigA) + padBig(b))
	if err != nil {
		return nil, err
	}
	if u.Sign() == 0 {
		return nil, fmt.Errorf("u must not be zero")
	}

	userPassHash := hexDigest([]byte(s.poolName + userID + ":" + password))
	x, err := hexBigHash(padHex(saltHex) + userPassHash)
	if err != nil {
		return nil, err
	}

	gx := new(big.Int).Exp(srpG, x, srpN)
	base := new(big.Int).Sub(b, new(big.Int).Mul(srpK, gx))
	base.Mod(base, srpN)
	exp := new(big.Int).Add(s.a, new(big.Int).Mul(u, x))
	secret := new(big.Int).Exp(base, exp, srpN)

	ikm, err := hex.DecodeString(padBig(secret))
	if err != nil {
		return nil, err
	}
	salt, err := hex.DecodeString(padBig(u))
	if err != nil {
		return nil, err
	}
	key := make([]byte, derivedKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte(derivedKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// signPasswordClaim produces the base64 HMAC signature over
// poolName || userID || secretBlock || timestamp.
func (s *srpSession) signPasswordClaim(key []byte, userID, secretBlockB64, timestamp string) (string, error) {
	secretBlock, err := base64.StdEncoding.DecodeString(secretBlockB64)
	if err != nil {
		return "", fmt.Errorf("decode secret block: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(s.poolName + userID))
	mac.Write(secretBlock)
	mac.Write([]byte(timestamp))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// srpTimestamp formats t the way the pool expects: UTC, English weekday and
// month names, day of month without a leading zero.
func srpTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// padHex makes a hex string decodable as a positive big-endian integer:
// odd length gets a leading zero, a high leading nibble gets a zero byte.
func padHex(s string) string {
	if len(s)%2 == 1 {
		return "0" + s
	}
	if len(s) > 0 && strings.ContainsRune("89abcdefABCDEF", rune(s[0])) {
		return "00" + s
	}
	return s
}

func padBig(x *big.Int) string {
	return padHex(x.Text(16))
}

// hexHash hashes the bytes a hex string encodes and returns the hex digest.
func hexHash(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", fmt.Errorf("decode hex: %w", err)
	}
	return hexDigest(b), nil
}

func hexBigHash(hexStr string) (*big.Int, error) {
	h, err := hexHash(hexStr)
	if err != nil {
		return nil, err
	}
	return mustHexBig(h), nil
}

func hexDigest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func mustHexBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("malformed hex integer " + s)
	}
	return n
}
