package jwt

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Registered and engine-owned claim names.
const (
	ClaimID         = "jti"
	ClaimIssuedAt   = "iat"
	ClaimOriginalAt = "oat"
	ClaimExpiresAt  = "exp"
	ClaimUser       = "user"
	ClaimIssuer     = "iss"
	ClaimAudience   = "aud"
	ClaimSubject    = "sub"
)

var reservedClaims = map[string]struct{}{
	ClaimID:         {},
	ClaimIssuedAt:   {},
	ClaimOriginalAt: {},
	ClaimExpiresAt:  {},
	ClaimUser:       {},
	ClaimIssuer:     {},
	ClaimAudience:   {},
	ClaimSubject:    {},
}

// IsReserved reports whether name is owned by the engine rather than the host.
func IsReserved(name string) bool {
	_, ok := reservedClaims[name]
	return ok
}

// Payload is the claim set embedded in an access token. It is built once
// per issuance and treated as immutable afterwards.
//
// Invariant: OriginalAt <= IssuedAt < ExpiresAt. All times carry second
// precision.
type Payload struct {
	ID         string
	IssuedAt   time.Time
	OriginalAt time.Time
	ExpiresAt  time.Time
	User       map[string]any
	Issuer     string
	Audience   []string
	Subject    string
	// Extra holds every host-supplied, non-reserved claim.
	Extra map[string]any
}

// PayloadInput carries everything needed to build a fresh [Payload].
type PayloadInput struct {
	ID       string
	Now      time.Time
	TTL      time.Duration
	User     map[string]any
	Issuer   string
	Audience []string
	Subject  string
	// Claims are host-supplied. "oat" seeds OriginalAt, "iss", "aud" and
	// "sub" override the defaults above, other reserved names are ignored.
	Claims map[string]any
}

// NewPayload builds a payload with iat = Now, exp = iat + TTL and oat taken
// from Claims["oat"] or defaulting to iat.
func NewPayload(in PayloadInput) (*Payload, error) {
	if in.ID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingClaim, ClaimID)
	}
	if in.User == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingClaim, ClaimUser)
	}
	if in.TTL < time.Second {
		return nil, fmt.Errorf("%w: %s", ErrInvalidClaim, ClaimExpiresAt)
	}

	iat := in.Now.Truncate(time.Second)
	p := &Payload{
		ID:         in.ID,
		IssuedAt:   iat,
		OriginalAt: iat,
		ExpiresAt:  iat.Add(in.TTL.Truncate(time.Second)),
		User:       in.User,
		Issuer:     in.Issuer,
		Audience:   in.Audience,
		Subject:    in.Subject,
		Extra:      make(map[string]any),
	}

	for name, value := range in.Claims {
		switch name {
		case ClaimOriginalAt:
			oat, ok := claimTime(value)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrInvalidClaim, ClaimOriginalAt)
			}
			p.OriginalAt = oat
		case ClaimIssuer:
			p.Issuer, _ = value.(string)
		case ClaimAudience:
			p.Audience = claimStrings(value)
		case ClaimSubject:
			p.Subject, _ = value.(string)
		default:
			if !IsReserved(name) {
				p.Extra[name] = value
			}
		}
	}

	if p.OriginalAt.After(p.IssuedAt) {
		return nil, fmt.Errorf("%w: %s after %s", ErrInvalidClaim, ClaimOriginalAt, ClaimIssuedAt)
	}
	return p, nil
}

// Claims returns the wire claim set. Host claims never shadow reserved ones.
func (p *Payload) Claims() jwt.MapClaims {
	claims := make(jwt.MapClaims, len(p.Extra)+8)
	for k, v := range p.Extra {
		claims[k] = v
	}
	claims[ClaimID] = p.ID
	claims[ClaimIssuedAt] = p.IssuedAt.Unix()
	claims[ClaimOriginalAt] = p.OriginalAt.Unix()
	claims[ClaimExpiresAt] = p.ExpiresAt.Unix()
	claims[ClaimUser] = p.User
	if p.Issuer != "" {
		claims[ClaimIssuer] = p.Issuer
	}
	switch len(p.Audience) {
	case 0:
	case 1:
		claims[ClaimAudience] = p.Audience[0]
	default:
		claims[ClaimAudience] = p.Audience
	}
	if p.Subject != "" {
		claims[ClaimSubject] = p.Subject
	}
	return claims
}

// CarryOver returns the claims a refresh must preserve: oat, iss, aud, sub
// and every host claim.
func (p *Payload) CarryOver() map[string]any {
	out := make(map[string]any, len(p.Extra)+4)
	for k, v := range p.Extra {
		out[k] = v
	}
	out[ClaimOriginalAt] = p.OriginalAt.Unix()
	if p.Issuer != "" {
		out[ClaimIssuer] = p.Issuer
	}
	if len(p.Audience) > 0 {
		out[ClaimAudience] = append([]string(nil), p.Audience...)
	}
	if p.Subject != "" {
		out[ClaimSubject] = p.Subject
	}
	return out
}

// Claim returns a claim by wire name.
func (p *Payload) Claim(name string) (any, bool) {
	v, ok := p.Claims()[name]
	return v, ok
}

// UserID extracts the identifier stored under key inside the user claim.
// String and numeric identifiers are both accepted.
func (p *Payload) UserID(key string) (string, error) {
	v, ok := p.User[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s.%s", ErrMissingClaim, ClaimUser, key)
	}
	id, ok := stringify(v)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: %s.%s", ErrInvalidClaim, ClaimUser, key)
	}
	return id, nil
}

// PayloadFromClaims rebuilds a payload from decoded wire claims. Every
// engine-owned claim must be present.
func PayloadFromClaims(claims jwt.MapClaims) (*Payload, error) {
	p := &Payload{Extra: make(map[string]any)}

	for _, name := range []string{ClaimExpiresAt, ClaimIssuedAt, ClaimID, ClaimUser, ClaimOriginalAt} {
		if v, ok := claims[name]; !ok || v == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingClaim, name)
		}
	}

	var ok bool
	if p.ExpiresAt, ok = claimTime(claims[ClaimExpiresAt]); !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidClaim, ClaimExpiresAt)
	}
	if p.IssuedAt, ok = claimTime(claims[ClaimIssuedAt]); !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidClaim, ClaimIssuedAt)
	}
	if p.OriginalAt, ok = claimTime(claims[ClaimOriginalAt]); !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidClaim, ClaimOriginalAt)
	}
	if p.ID, ok = claims[ClaimID].(string); !ok || p.ID == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidClaim, ClaimID)
	}
	if p.User, ok = claims[ClaimUser].(map[string]any); !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidClaim, ClaimUser)
	}
	if v, present := claims[ClaimIssuer]; present {
		if p.Issuer, ok = v.(string); !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidClaim, ClaimIssuer)
		}
	}
	if v, present := claims[ClaimAudience]; present {
		if p.Audience = claimStrings(v); p.Audience == nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidClaim, ClaimAudience)
		}
	}
	if v, present := claims[ClaimSubject]; present {
		if p.Subject, ok = v.(string); !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidClaim, ClaimSubject)
		}
	}

	for k, v := range claims {
		if !IsReserved(k) {
			p.Extra[k] = v
		}
	}
	return p, nil
}

func claimTime(v any) (time.Time, bool) {
	var sec float64
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return time.Unix(i, 0), true
		}
		f, err := n.Float64()
		if err != nil {
			return time.Time{}, false
		}
		sec = f
	case float64:
		sec = n
	case int64:
		return time.Unix(n, 0), true
	case int:
		return time.Unix(int64(n), 0), true
	case time.Time:
		return n.Truncate(time.Second), true
	default:
		return time.Time{}, false
	}
	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		return time.Time{}, false
	}
	return time.Unix(int64(sec), 0), true
}

func claimStrings(v any) []string {
	switch a := v.(type) {
	case string:
		return []string{a}
	case []string:
		return append([]string(nil), a...)
	case []any:
		out := make([]string, 0, len(a))
		for _, item := range a {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			out = append(out, s)
		}
		return out
	}
	return nil
}

func stringify(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, true
	case json.Number:
		return id.String(), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case uint64:
		return strconv.FormatUint(id, 10), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case fmt.Stringer:
		return id.String(), true
	}
	return "", false
}
