package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func signedClaims(t *testing.T, priv ed25519.PrivateKey, c AccessClaims) string {
	t.Helper()
	tok, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestCreateAccessRoundTripAndScopes(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Hour,
		RecoveryTTL:   5 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "relayauth",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	full, fullExp, err := m.CreateAccess("u1", "s1", "a@x.com", ScopeFull)
	if err != nil {
		t.Fatalf("create full: %v", err)
	}
	claims, err := m.ParseAccess(full)
	if err != nil {
		t.Fatalf("parse full: %v", err)
	}
	if claims.UID != "u1" || claims.SID != "s1" || claims.Email != "a@x.com" || claims.IsRecovery() {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	rec, recExp, err := m.CreateAccess("u1", "s2", "a@x.com", ScopeRecovery)
	if err != nil {
		t.Fatalf("create recovery: %v", err)
	}
	if !recExp.Before(fullExp) {
		t.Fatal("recovery token must expire before a full token")
	}
	recClaims, err := m.ParseAccess(rec)
	if err != nil {
		t.Fatalf("parse recovery: %v", err)
	}
	if !recClaims.IsRecovery() {
		t.Fatal("expected recovery scope")
	}

	if _, _, err := m.CreateAccess("u1", "s3", "", "admin"); !errors.Is(err, ErrUnknownScope) {
		t.Fatalf("expected ErrUnknownScope, got %v", err)
	}
}

func TestReadUnverifiedIgnoresSignatureAndExpiry(t *testing.T) {
	_, priv := newEdKeys(t)
	tok := signedClaims(t, priv, AccessClaims{
		UID: "u1", SID: "s1", Scope: ScopeRecovery,
		RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})

	claims, err := ReadUnverified(tok)
	if err != nil {
		t.Fatalf("read unverified: %v", err)
	}
	if !claims.IsRecovery() || claims.ExpiresAt == nil {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	missing := signedClaims(t, priv, AccessClaims{SID: "s1"})
	if _, err := ReadUnverified(missing); !errors.Is(err, ErrMissingClaims) {
		t.Fatalf("expected ErrMissingClaims, got %v", err)
	}
	if _, err := ReadUnverified("garbage"); err == nil {
		t.Fatal("expected malformed token error")
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := AccessClaims{UID: "u", SID: "s1", Scope: ScopeFull, RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "relayauth",
		Audience:      "mobile",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claimsAt := func(issuer, aud string, exp, iat time.Duration) AccessClaims {
		return AccessClaims{UID: "u", SID: "s1", Scope: ScopeFull, RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  gjwt.ClaimStrings{aud},
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(exp)),
			IssuedAt:  gjwt.NewNumericDate(time.Now().Add(iat)),
		}}
	}

	cases := []struct {
		name string
		c    AccessClaims
		ok   bool
	}{
		{"valid", claimsAt("relayauth", "mobile", time.Minute, 0), true},
		{"wrong issuer", claimsAt("other", "mobile", time.Minute, 0), false},
		{"wrong audience", claimsAt("relayauth", "web", time.Minute, 0), false},
		{"expired within leeway", claimsAt("relayauth", "mobile", -15*time.Second, -time.Minute), true},
		{"expired", claimsAt("relayauth", "mobile", -2*time.Minute, -3*time.Minute), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.ParseAccess(signedClaims(t, priv, tc.c))
			if (err == nil) != tc.ok {
				t.Fatalf("ParseAccess err=%v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestParseAccessUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := AccessClaims{UID: "u", SID: "s1", Scope: ScopeFull, RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	tok2 := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok2.Header["kid"] = "k1"
	good, _ := tok2.SignedString(priv1)
	if _, err := m.ParseAccess(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if _, err := m2.ParseAccess(good); err == nil {
		t.Fatal("expected parse failure with mismatched key set")
	}
}

func TestNewManagerValidation(t *testing.T) {
	pub, _ := newEdKeys(t)
	cases := map[string]Config{
		"zero ttl":        {SigningMethod: MethodEd25519, PublicKey: pub},
		"short hs secret": {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		"no ed key":       {AccessTTL: time.Minute, SigningMethod: MethodEd25519},
		"bad method":      {AccessTTL: time.Minute, SigningMethod: "rs256"},
		"huge leeway":     {AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub, Leeway: time.Hour},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewManager(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
