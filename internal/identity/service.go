// Package identity resolves a single canonical identity per request: the
// authenticated user when one exists, else an anonymous device token carried
// in a signed cookie. An unkeyed balance mutation is unsafe, so resolution
// failure is a hard error for every ledger endpoint.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mssola/useragent"

	"arcana/pkg/secrets"
)

// CookieName is the signed anonymous-device cookie.
const CookieName = "arcana_device"

// cookieMaxAge keeps anonymous balances stable for a year per browser.
const cookieMaxAge = 365 * 24 * time.Hour

// Service signs, verifies and mints anonymous device tokens.
type Service struct {
	secret []byte
	secure bool
}

// Option configures a Service.
type Option func(*Service)

// WithSecureCookies marks issued cookies Secure; disable only for local
// development over plain HTTP.
func WithSecureCookies(secure bool) Option {
	return func(s *Service) {
		s.secure = secure
	}
}

// NewService constructs a device identity service keyed by the server secret.
func NewService(secret string, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, fmt.Errorf("device cookie secret is required")
	}
	svc := &Service{secret: []byte(secret), secure: true}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Mint generates a fresh random device token.
func (s *Service) Mint() (string, error) {
	return secrets.GenerateToken()
}

// sign computes the keyed hash over a device token.
func (s *Service) sign(token string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// EncodeCookie serializes a token into the signed cookie value.
func (s *Service) EncodeCookie(token string) string {
	return token + "." + s.sign(token)
}

// DecodeCookie verifies a cookie value and returns the embedded token.
// Verification is constant-time; a tampered or truncated value yields ok=false.
func (s *Service) DecodeCookie(value string) (token string, ok bool) {
	token, sig, found := strings.Cut(value, ".")
	if !found || token == "" {
		return "", false
	}
	expected := s.sign(token)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return "", false
	}
	return token, true
}

// SetCookie writes a signed, httponly device cookie on the response.
func (s *Service) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.EncodeCookie(token),
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// DeviceLabel derives a human-readable device name from a User-Agent string,
// recorded when a device token is first minted.
func DeviceLabel(ua string) string {
	if ua == "" {
		return "Unknown Device"
	}
	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()
	os := parsed.OSInfo().Name
	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}
