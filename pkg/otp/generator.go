// Package otp issues short lived numeric codes bound to a user's mutable
// credentials. Codes are never stored: they are recomputed on verification and
// stop matching as soon as the password hash or last login changes.
package otp

import (
	"encoding/base32"
	"strconv"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

// ExpirySeconds is how long an issued code stays valid.
const ExpirySeconds = 600

const lastLoginLayout = "2006-01-02 15:04:05"

// epoch shrinks the counter magnitude.
var epoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// Identity is the subset of user state a code is bound to.
type Identity struct {
	ID           string
	PasswordHash string
	LastLogin    *time.Time
	Email        string
}

// Clock returns the current time.
type Clock func() time.Time

// Generator makes and checks codes.
type Generator struct {
	now    Clock
	expiry int64
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(g *Generator) {
		if clock != nil {
			g.now = clock
		}
	}
}

// NewGenerator builds a Generator using the wall clock.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{now: time.Now, expiry: ExpirySeconds}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MakeToken returns the 6 digit code for the identity at the current second.
func (g *Generator) MakeToken(id Identity) string {
	return g.tokenAt(id, g.timestamp())
}

// CheckToken reports whether candidate was issued for id within the last
// ExpirySeconds seconds. It scans every second of the window, newest first.
func (g *Generator) CheckToken(id *Identity, candidate string) bool {
	if id == nil || candidate == "" {
		return false
	}
	now := g.timestamp()
	for delta := int64(0); delta <= g.expiry; delta++ {
		if g.tokenAt(*id, now-delta) == candidate {
			return true
		}
	}
	return false
}

func (g *Generator) timestamp() int64 {
	return int64(g.now().UTC().Sub(epoch) / time.Second)
}

func (g *Generator) tokenAt(id Identity, timestamp int64) string {
	secret := base32.StdEncoding.EncodeToString([]byte(hashInput(id, timestamp)))
	code, err := hotp.GenerateCodeCustom(secret, uint64(timestamp), hotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// only reachable on a malformed secret, which StdEncoding never produces
		return ""
	}
	return code
}

func hashInput(id Identity, timestamp int64) string {
	lastLogin := ""
	if id.LastLogin != nil {
		lastLogin = id.LastLogin.UTC().Truncate(time.Second).Format(lastLoginLayout)
	}
	return id.ID + id.PasswordHash + lastLogin + strconv.FormatInt(timestamp, 10) + id.Email
}
