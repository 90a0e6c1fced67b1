package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestGenerateAndParse(t *testing.T) {
	userID := uuid.New()
	tok, err := GenerateToken(userID, "ada@example.com", "s3cret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseToken(tok, "s3cret")
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != userID || claims.Email != "ada@example.com" || claims.Issuer != Issuer {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseRejects(t *testing.T) {
	good, _ := GenerateToken(uuid.New(), "a@b.c", "s3cret", time.Hour)
	expired, _ := GenerateToken(uuid.New(), "a@b.c", "s3cret", -time.Minute)
	noUser, _ := GenerateToken(uuid.Nil, "a@b.c", "s3cret", time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: uuid.New()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]struct{ token, secret string }{
		"wrong secret": {good, "other"},
		"expired":      {expired, "s3cret"},
		"nil user":     {noUser, "s3cret"},
		"alg none":     {none, "s3cret"},
		"garbage":      {"not-a-jwt", "s3cret"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseToken(tc.token, tc.secret); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
