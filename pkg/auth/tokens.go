package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"courier/pkg/apperr"
	"courier/pkg/timeutil"
)

var (
	ErrInvalidToken = apperr.Auth("auth.verify", "invalid token")
	ErrExpiredToken = apperr.Auth("auth.verify", "token expired")
)

// Signer issues and verifies user credentials of the form
// <userID>.<expiryUnix>.<hex hmac-sha256>. The first key signs; every key
// verifies so keys can be rotated.
type Signer struct {
	keys  [][]byte
	ttl   time.Duration
	clock timeutil.Clock
}

func NewSigner(keys []string, ttl time.Duration, clock timeutil.Clock) (*Signer, error) {
	if len(keys) == 0 {
		return nil, errors.New("auth: at least one signing key is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	if clock == nil {
		clock = timeutil.System
	}
	s := &Signer{ttl: ttl, clock: clock}
	for _, k := range keys {
		s.keys = append(s.keys, []byte(k))
	}
	return s, nil
}

// Issue mints a token for userID valid for the configured ttl.
func (s *Signer) Issue(userID string) (string, time.Time, error) {
	if userID == "" || strings.ContainsAny(userID, " \t\r\n") {
		return "", time.Time{}, apperr.Validation("auth.issue", "invalid userId")
	}
	exp := s.clock.Now().Add(s.ttl).UTC().Truncate(time.Second)
	payload := userID + "." + strconv.FormatInt(exp.Unix(), 10)
	return payload + "." + sign(s.keys[0], payload), exp, nil
}

// Verify returns the user id bound to token.
func (s *Signer) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	sigAt := strings.LastIndexByte(token, '.')
	if sigAt <= 0 {
		return "", ErrInvalidToken
	}
	payload, sig := token[:sigAt], token[sigAt+1:]
	expAt := strings.LastIndexByte(payload, '.')
	if expAt <= 0 {
		return "", ErrInvalidToken
	}
	userID, expRaw := payload[:expAt], payload[expAt+1:]
	exp, err := strconv.ParseInt(expRaw, 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	ok := false
	for _, k := range s.keys {
		if hmac.Equal([]byte(sign(k, payload)), []byte(sig)) {
			ok = true
			break
		}
	}
	if !ok {
		return "", ErrInvalidToken
	}
	if !s.clock.Now().Before(time.Unix(exp, 0)) {
		return "", ErrExpiredToken
	}
	return userID, nil
}

func sign(key []byte, payload string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
