// Package link turns record references into the opaque tokens carried by
// Telegram deep links and back.
//
// Tokens are reversible obfuscation, not access control: anyone who knows a
// numeric id can mint a working token.
package link

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Kind names the record a token points at.
type Kind string

const (
	KindFile  Kind = "file"
	KindBatch Kind = "batch"
)

// maxTokenLength is the Telegram limit for a start parameter.
const maxTokenLength = 64

var ErrInvalidToken = errors.New("invalid or expired link")

// Ref is a decoded token.
type Ref struct {
	Kind Kind
	ID   uint64
}

func (r Ref) String() string {
	return fmt.Sprintf("%s_%d", r.Kind, r.ID)
}

// Encode returns the URL-safe token for (kind, id).
func Encode(kind Kind, id uint64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(Ref{Kind: kind, ID: id}.String()))
}

// Decode reverses Encode. Any input Encode could not have produced yields
// ErrInvalidToken. Trailing '=' padding from older links is accepted.
func Decode(token string) (Ref, error) {
	token = strings.TrimRight(strings.TrimSpace(token), "=")
	if token == "" || len(token) > maxTokenLength {
		return Ref{}, ErrInvalidToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Ref{}, ErrInvalidToken
	}

	prefix, digits, ok := strings.Cut(string(raw), "_")
	if !ok {
		return Ref{}, ErrInvalidToken
	}

	kind := Kind(prefix)
	if kind != KindFile && kind != KindBatch {
		return Ref{}, ErrInvalidToken
	}

	id, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return Ref{}, ErrInvalidToken
	}

	// Reject "+1", "007" and similar non-canonical spellings.
	ref := Ref{Kind: kind, ID: id}
	if Encode(ref.Kind, ref.ID) != token {
		return Ref{}, ErrInvalidToken
	}
	return ref, nil
}

// DeepLink renders https://<host>/<bot>?start=<token>.
func DeepLink(host, botUsername, token string) string {
	if host == "" {
		host = "t.me"
	}
	u := url.URL{
		Scheme:   "https",
		Host:     host,
		Path:     "/" + strings.TrimPrefix(botUsername, "@"),
		RawQuery: url.Values{"start": []string{token}}.Encode(),
	}
	return u.String()
}
