package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpWindow is the number of 30-second steps on either side of the
// current step checked for clock-skew tolerance (spec §4.11, W=1).
const totpWindow = 1

// recoveryCodeCount is the default number of recovery codes minted by
// GenerateRecoveryCodes.
const recoveryCodeCount = 10

// GenerateSecret mints a fresh 20-byte random TOTP secret, returned
// base32-encoded for display and provisioning-URI embedding.
func GenerateSecret() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("auth: generate totp secret: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// ProvisioningURI builds the otpauth://totp/... URI standard authenticator
// apps consume, encoding SHA-1, 6 digits, and a 30-second period.
func ProvisioningURI(secret, accountName, issuer string) string {
	label := url.PathEscape(fmt.Sprintf("%s:%s", issuer, accountName))
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", "6")
	v.Set("period", "30")
	return fmt.Sprintf("otpauth://totp/%s?%s", label, v.Encode())
}

// VerifyCode checks code against secret for the current 30-second step
// and the ±totpWindow neighbors, constant-time. lastCounter is the
// previously accepted step (-1 if none); a match at or before lastCounter
// is rejected as replayed. On acceptance, returns the matched step so the
// caller can persist it as the new last_counter.
func VerifyCode(secret, code string, lastCounter int64) (accepted bool, matchedStep int64, err error) {
	nowStep := time.Now().Unix() / 30

	for w := -totpWindow; w <= totpWindow; w++ {
		step := nowStep + int64(w)
		expected, err := totp.GenerateCodeCustom(secret, time.Unix(step*30, 0), totp.ValidateOpts{
			Period:    30,
			Skew:      0,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil {
			return false, 0, fmt.Errorf("auth: generate totp code: %w", err)
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			if lastCounter >= 0 && step <= lastCounter {
				return false, 0, nil // replayed
			}
			return true, step, nil
		}
	}
	return false, 0, nil
}

// GenerateRecoveryCodes mints n (recoveryCodeCount if n<=0) random
// "XXXX-XXXX" recovery codes and returns both the plaintext (shown once
// to the user) and the SHA-256 hashes to persist.
func GenerateRecoveryCodes(n int) (plaintext []string, hashes []string, err error) {
	if n <= 0 {
		n = recoveryCodeCount
	}
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // excludes ambiguous chars
	for i := 0; i < n; i++ {
		buf := make([]byte, 8)
		raw := make([]byte, 8)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, fmt.Errorf("auth: generate recovery code: %w", err)
		}
		for j, b := range raw {
			buf[j] = alphabet[int(b)%len(alphabet)]
		}
		code := fmt.Sprintf("%s-%s", buf[:4], buf[4:])
		plaintext = append(plaintext, code)
		hashes = append(hashes, HashRecoveryCode(code))
	}
	return plaintext, hashes, nil
}

// HashRecoveryCode normalizes formatting and returns the SHA-256 hash
// stored in place of the plaintext recovery code.
func HashRecoveryCode(code string) string {
	normalized := strings.ToUpper(strings.ReplaceAll(code, " ", ""))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// VerifyRecoveryCode reports whether code's hash is present in available
// and absent from consumed. Callers move the matched hash into their
// consumed set on acceptance.
func VerifyRecoveryCode(code string, available, consumed []string) (hash string, ok bool) {
	h := HashRecoveryCode(code)
	consumedSet := make(map[string]struct{}, len(consumed))
	for _, c := range consumed {
		consumedSet[c] = struct{}{}
	}
	if _, already := consumedSet[h]; already {
		return "", false
	}
	for _, a := range available {
		if subtle.ConstantTimeCompare([]byte(a), []byte(h)) == 1 {
			return h, true
		}
	}
	return "", false
}
