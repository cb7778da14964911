package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"math/big"
	"testing"
	"time"

	"golang.org/x/crypto/hkdf"
)

// testSRPServer is the pool side of the protocol, used to check that the
// client's shared-secret computation agrees with an independent derivation.
type testSRPServer struct {
	poolName string
	saltHex  string
	v        *big.Int
	b        *big.Int
	bigB     *big.Int
}

func newTestSRPServer(t *testing.T, poolName, userID, password, saltHex string) *testSRPServer {
	t.Helper()
	userPassHash := hexDigest([]byte(poolName + userID + ":" + password))
	x, err := hexBigHash(padHex(saltHex) + userPassHash)
	if err != nil {
		t.Fatalf("derive x: %v", err)
	}
	v := new(big.Int).Exp(srpG, x, srpN)
	b := mustHexBig("5f2c9d481be6a07341ff90d2ce58b1a44307d2e91c66a5f8b03d7e612a49c8d3")
	gb := new(big.Int).Exp(srpG, b, srpN)
	bigB := new(big.Int).Add(new(big.Int).Mul(srpK, v), gb)
	bigB.Mod(bigB, srpN)
	return &testSRPServer{poolName: poolName, saltHex: saltHex, v: v, b: b, bigB: bigB}
}

// sharedKey derives the server's copy of the HKDF key from the client's
// public ephemeral.
func (s *testSRPServer) sharedKey(t *testing.T, bigA *big.Int) []byte {
	t.Helper()
	u, err := hexBigHash(padBig(bigA) + padBig(s.bigB))
	if err != nil {
		t.Fatalf("derive u: %v", err)
	}
	vu := new(big.Int).Exp(s.v, u, srpN)
	base := new(big.Int).Mul(bigA, vu)
	base.Mod(base, srpN)
	secret := new(big.Int).Exp(base, s.b, srpN)

	ikm, err := hex.DecodeString(padBig(secret))
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	salt, err := hex.DecodeString(padBig(u))
	if err != nil {
		t.Fatalf("decode u: %v", err)
	}
	key := make([]byte, derivedKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte(derivedKeyInfo)), key); err != nil {
		t.Fatalf("hkdf: %v", err)
	}
	return key
}

func (s *testSRPServer) expectedSignature(key []byte, userID string, secretBlock []byte, timestamp string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(s.poolName + userID))
	mac.Write(secretBlock)
	mac.Write([]byte(timestamp))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSRP_ClientAndServerAgreeOnKey(t *testing.T) {
	const (
		userID   = "uid-4711"
		password = "correct horse battery staple"
		saltHex  = "f3a91b4c22d106e5"
	)
	sess, err := newSRPSession("eu-1_TestPool")
	if err != nil {
		t.Fatalf("newSRPSession: %v", err)
	}
	srv := newTestSRPServer(t, "TestPool", userID, password, saltHex)

	clientKey, err := sess.passwordAuthKey(userID, password, saltHex, srv.bigB)
	if err != nil {
		t.Fatalf("passwordAuthKey: %v", err)
	}
	serverKey := srv.sharedKey(t, sess.bigA)
	if !bytes.Equal(clientKey, serverKey) {
		t.Fatalf("client key %x != server key %x", clientKey, serverKey)
	}

	secretBlock := []byte("opaque-secret-block-bytes")
	ts := srpTimestamp(time.Date(2026, time.March, 5, 9, 4, 5, 0, time.UTC))
	sig, err := sess.signPasswordClaim(clientKey, userID, base64.StdEncoding.EncodeToString(secretBlock), ts)
	if err != nil {
		t.Fatalf("signPasswordClaim: %v", err)
	}
	if want := srv.expectedSignature(serverKey, userID, secretBlock, ts); sig != want {
		t.Errorf("signature = %q, want %q", sig, want)
	}
}

func TestSRP_WrongPasswordChangesKey(t *testing.T) {
	const saltHex = "0a1b2c3d4e5f6071"
	sess, err := newSRPSession("eu-1_TestPool")
	if err != nil {
		t.Fatalf("newSRPSession: %v", err)
	}
	srv := newTestSRPServer(t, "TestPool", "uid-1", "right password", saltHex)
	clientKey, err := sess.passwordAuthKey("uid-1", "wrong password", saltHex, srv.bigB)
	if err != nil {
		t.Fatalf("passwordAuthKey: %v", err)
	}
	if bytes.Equal(clientKey, srv.sharedKey(t, sess.bigA)) {
		t.Error("keys agree despite different passwords")
	}
}

func TestNewSRPSession_PoolName(t *testing.T) {
	sess, err := newSRPSession("eu-central-1_Ab9Xy")
	if err != nil {
		t.Fatalf("newSRPSession: %v", err)
	}
	if sess.poolName != "Ab9Xy" {
		t.Errorf("poolName = %q, want Ab9Xy", sess.poolName)
	}
	if _, err := newSRPSession("nounderscore"); err == nil {
		t.Error("malformed pool id accepted")
	}
}

func TestSRPSession_PublicEphemeralRoundTrips(t *testing.T) {
	sess, err := newSRPSession("eu-1_P")
	if err != nil {
		t.Fatalf("newSRPSession: %v", err)
	}
	parsed, ok := new(big.Int).SetString(sess.srpA(), 16)
	if !ok || parsed.Cmp(sess.bigA) != 0 {
		t.Errorf("srpA() does not round-trip")
	}
	if sess.bigA.Cmp(srpN) >= 0 {
		t.Errorf("A not reduced mod N")
	}
}

func TestPadHex(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc", "0abc"},
		{"1234", "1234"},
		{"beef", "00beef"},
		{"7fff", "7fff"},
		{"f", "0f"},
		{"8a", "008a"},
		{"Beef", "00Beef"},
	}
	for _, tt := range tests {
		if got := padHex(tt.in); got != tt.want {
			t.Errorf("padHex(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSRPTimestamp_Format(t *testing.T) {
	// day of month unpadded, clock padded, always UTC
	got := srpTimestamp(time.Date(2026, time.March, 5, 9, 4, 5, 0, time.UTC))
	if got != "Thu Mar 5 09:04:05 UTC 2026" {
		t.Errorf("timestamp = %q", got)
	}
	loc := time.FixedZone("CEST", 2*3600)
	got = srpTimestamp(time.Date(2026, time.August, 14, 1, 30, 0, 0, loc))
	if got != "Thu Aug 13 23:30:00 UTC 2026" {
		t.Errorf("timestamp = %q, want conversion to UTC", got)
	}
}

func TestSRPGroupConstants(t *testing.T) {
	if srpN.BitLen() != 3072 {
		t.Errorf("N bit length = %d, want 3072", srpN.BitLen())
	}
	if !srpN.ProbablyPrime(8) {
		t.Error("N is not prime")
	}
	if srpK.Sign() <= 0 || srpK.Cmp(srpN) >= 0 {
		t.Errorf("k out of range: %s", srpK.Text(16))
	}
}
