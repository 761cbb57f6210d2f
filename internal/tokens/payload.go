// Package tokens implements the opaque encrypted token handler: building,
// validating, and revoking authorization codes, access tokens, and refresh
// tokens, plus the symmetric key rotation and revocation blacklist that
// back them.
package tokens

import (
	"fmt"
	"strconv"
	"strings"
)

// Type identifies which of the three opaque token kinds a payload encodes.
type Type string

const (
	TypeAuthCode Type = "act"
	TypeAccessToken Type = "at"
	TypeRefreshToken Type = "rt"
)

// payload is the plaintext tuple encrypted inside a token:
// "type?user?expiration_seconds?client_id?scopes?additional_data" (six
// fields, five separators, no trailing '?').
type payload struct {
	typ Type
	user string
	expirationSecs int64
	clientID string
	scopes []string
	additionalData string
}

const payloadFieldCount = 6

func (p payload) encode() string {
	fields := []string{
		string(p.typ),
		p.user,
		strconv.FormatInt(p.expirationSecs, 10),
		p.clientID,
		strings.Join(p.scopes, " "),
		p.additionalData,
	}
	return strings.Join(fields, "?")
}

// decodePayload parses the '?'-delimited tuple. Any malformed payload
// (wrong number of fields, unparseable expiration) is reported back as
// an error rather than panicking, so callers can degrade to valid=false
// instead of crashing.
func decodePayload(s string) (payload, error) {
	fields := strings.Split(s, "?")
	if len(fields) != payloadFieldCount {
		return payload{}, fmt.Errorf("tokens: malformed payload: expected %d fields, got %d", payloadFieldCount, len(fields))
	}

	exp, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return payload{}, fmt.Errorf("tokens: malformed payload: bad expiration: %w", err)
	}

	var scopes []string
	if fields[4] != "" {
		scopes = strings.Split(fields[4], " ")
	}

	return payload{
		typ: Type(fields[0]),
		user: fields[1],
		expirationSecs: exp,
		clientID: fields[3],
		scopes: scopes,
		additionalData: fields[5],
	}, nil
}
