package auth

import (
	"net/http"
	"testing"
	"time"
)

func TestVerifySignedTokenRoundTrip(t *testing.T) {
	g := Gate{SigningSecret: "s3cret"}
	token, err := g.Issue("admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !g.Verify(token) {
		t.Fatal("expected freshly issued token to verify")
	}
	if (Gate{SigningSecret: "other"}).Verify(token) {
		t.Fatal("expected token signed with different secret to fail")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issued := time.Now().Add(-70 * time.Minute)
	issuer := Gate{SigningSecret: "s3cret", Now: func() time.Time { return issued }}
	token, err := issuer.Issue("admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	// Signature is valid, expiry (issue + 60m) is 10 minutes in the past.
	if (Gate{SigningSecret: "s3cret"}).Verify(token) {
		t.Fatal("expected expired token to fail verification")
	}
}

func TestVerifyFailsClosedWithNoSecrets(t *testing.T) {
	g := Gate{}
	for _, token := range []string{"", "anything", "Bearer x"} {
		if g.Verify(token) {
			t.Fatalf("expected token %q to fail with no secrets configured", token)
		}
	}
}

func TestVerifyStaticMode(t *testing.T) {
	g := Gate{StaticToken: "legacy-admin-token"}
	if !g.Verify("legacy-admin-token") {
		t.Fatal("expected exact static token to verify")
	}
	if g.Verify("legacy-admin-token ") && g.Verify("wrong") {
		t.Fatal("expected mismatched static token to fail")
	}
	// A configured signing secret disables the static path entirely.
	g.SigningSecret = "s3cret"
	if g.Verify("legacy-admin-token") {
		t.Fatal("expected static token to be ignored in signed mode")
	}
}

func TestVerifyMalformedToken(t *testing.T) {
	g := Gate{SigningSecret: "s3cret"}
	for _, token := range []string{"not-a-jwt", "a.b", "a.b.c.d", "..."} {
		if g.Verify(token) {
			t.Fatalf("expected malformed token %q to fail", token)
		}
	}
}

func TestIssueRequiresSigningSecret(t *testing.T) {
	if _, err := (Gate{StaticToken: "x"}).Issue("admin"); err == nil {
		t.Fatal("expected issuance to fail without signing secret")
	}
}

func TestBearerToken(t *testing.T) {
	h := http.Header{}
	if BearerToken(h) != "" {
		t.Fatal("expected empty token for missing header")
	}
	h.Set("Authorization", "Bearer abc123")
	if BearerToken(h) != "abc123" {
		t.Fatal("expected bearer token to be extracted")
	}
	h.Set("Authorization", "bearer abc123")
	if BearerToken(h) != "abc123" {
		t.Fatal("expected case-insensitive scheme")
	}
	h.Set("Authorization", "Basic abc123")
	if BearerToken(h) != "" {
		t.Fatal("expected non-bearer scheme to be ignored")
	}
}

func TestAuthenticatePriority(t *testing.T) {
	env := map[string]string{
		"LOGIN_USERS":    "alice:pw1,bob:pw2",
		"USER1":          "carol",
		"PASS1":          "pw3",
		"LOGIN_USERNAME": "dave",
		"LOGIN_PASSWORD": "pw4",
	}
	lookup := func(name string) string { return env[name] }

	cases := []struct {
		user, pass string
		want       bool
	}{
		{"alice", "pw1", true},
		{"bob", "pw2", true},
		{"carol", "pw3", true},
		{"dave", "pw4", true},
		{"alice", "pw2", false},
		{"mallory", "pw1", false},
		{"", "", false},
	}
	for _, tc := range cases {
		if got := Authenticate(lookup, tc.user, tc.pass); got != tc.want {
			t.Fatalf("Authenticate(%q, %q) = %v, want %v", tc.user, tc.pass, got, tc.want)
		}
	}
}

func TestAuthenticateNoSourcesConfigured(t *testing.T) {
	if Authenticate(func(string) string { return "" }, "alice", "pw") {
		t.Fatal("expected failure with no login sources configured")
	}
}
