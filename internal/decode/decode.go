// Package decode turns normalized legacy keys and values into typed records.
//
// Every function here is pure: it neither logs nor touches a store. Failures
// are reported as *Error values wrapping types.ErrRecordDecode so that the
// caller can skip the single record and carry on.
package decode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

// Error describes one legacy record that could not be decoded.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("decode %q: %s", e.Key, e.Reason)
}

// Unwrap reports the error as a types.ErrRecordDecode.
func (e *Error) Unwrap() error { return types.ErrRecordDecode }

func fail(key, format string, args ...any) *Error {
	return &Error{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// Domain decodes a legacy domain-credential pair. The key is the XMPP domain
// and the value holds authsecret, authurl, authdomain and an optional fourth
// field separated by tabs.
func Domain(key, value string) (types.DomainCredential, error) {
	if key == "" {
		return types.DomainCredential{}, fail(key, "empty domain")
	}
	fields := strings.SplitN(value, "\t", 4)
	if len(fields) < 3 {
		return types.DomainCredential{}, fail(key, "want at least 3 tab-separated fields, got %d", len(fields))
	}
	rec := types.DomainCredential{
		XMPPDomain: key,
		AuthSecret: fields[0],
		AuthURL:    fields[1],
		AuthDomain: fields[2],
	}
	if len(fields) == 4 {
		extra := fields[3]
		rec.Extra = &extra
	}
	return rec, nil
}

// AuthCache decodes a legacy auth-cache pair. The key is the jid and the
// value holds pwhash, three epoch-seconds timestamps and a reserved field.
// The reserved field may itself contain tabs.
func AuthCache(key, value string) (types.AuthCacheRecord, error) {
	if key == "" {
		return types.AuthCacheRecord{}, fail(key, "empty jid")
	}
	fields := strings.SplitN(value, "\t", 5)
	if len(fields) != 5 {
		return types.AuthCacheRecord{}, fail(key, "want 5 tab-separated fields, got %d", len(fields))
	}
	first, remote, anyAuth, err := timestamps(fields[1:4])
	if err != nil {
		return types.AuthCacheRecord{}, fail(key, "%v", err)
	}
	return types.AuthCacheRecord{
		JID:        key,
		PWHash:     fields[0],
		FirstAuth:  first,
		RemoteAuth: remote,
		AnyAuth:    anyAuth,
	}, nil
}

// Timestamps converts a tab-separated triple of epoch-seconds values, as
// stored in the legacy auth cache, into UTC times.
func Timestamps(value string) (first, remote, anyAuth time.Time, err error) {
	fields := strings.Split(value, "\t")
	if len(fields) != 3 {
		return time.Time{}, time.Time{}, time.Time{}, fmt.Errorf("%w: want 3 timestamps, got %d", types.ErrRecordDecode, len(fields))
	}
	first, remote, anyAuth, err = timestamps(fields)
	if err != nil {
		err = fmt.Errorf("%w: %v", types.ErrRecordDecode, err)
	}
	return first, remote, anyAuth, err
}

func timestamps(fields []string) (first, remote, anyAuth time.Time, err error) {
	var ts [3]time.Time
	for i, f := range fields {
		if ts[i], err = EpochSeconds(f); err != nil {
			return time.Time{}, time.Time{}, time.Time{}, err
		}
	}
	return ts[0], ts[1], ts[2], nil
}

// Epoch seconds of 0001-01-01T00:00:00Z and 9999-12-31T23:59:59Z. Times
// outside this range cannot be stored as SQL timestamps and read back.
const (
	minEpoch = -62135596800
	maxEpoch = 253402300799
)

// EpochSeconds parses a legacy timestamp. Whole seconds are the norm; values
// written with a fractional part are accepted as well. The result must fall
// within the years 1 to 9999.
func EpochSeconds(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < minEpoch || n > maxEpoch {
			return time.Time{}, fmt.Errorf("timestamp %q is out of range", s)
		}
		return time.Unix(n, 0).UTC(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("timestamp %q is not a number", s)
	}
	if f < minEpoch || f >= maxEpoch+1 {
		return time.Time{}, fmt.Errorf("timestamp %q is out of range", s)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}
