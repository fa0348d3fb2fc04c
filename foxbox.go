// Package foxbox provides a Foxbox home automation server client.
package foxbox

import (
	"sort"
	"strings"
)

// Error is the error type.
type Error string

// Error values.
const (
	// ErrAuthRejected is the authentication rejected error.
	ErrAuthRejected Error = "authentication rejected"
	// ErrTokenRejected is the session token rejected error.
	ErrTokenRejected Error = "session token rejected"
	// ErrPasswordRequired is the password required error.
	ErrPasswordRequired Error = "password required"
	// ErrUnknownType is the unknown value type error.
	ErrUnknownType Error = "unknown value type"
	// ErrMissingKey is the missing key in response error.
	ErrMissingKey Error = "missing key in response"
	// ErrTypeMismatch is the value type mismatch error.
	ErrTypeMismatch Error = "value type mismatch"
	// ErrBadStatusCode is the bad status code error.
	ErrBadStatusCode Error = "bad status code"
	// ErrInvalidResponse is the invalid response error.
	ErrInvalidResponse Error = "invalid response"
)

// Error satisfies the error interface.
func (err Error) Error() string {
	return string(err)
}

// Value type tags used in channel payloads.
const (
	TypeUnit            = "Unit"
	TypeString          = "String"
	TypeBool            = "Bool"
	TypeJSON            = "Json"
	TypeBinary          = "Binary"
	TypeOnOff           = "OnOff"
	TypeOpenClosed      = "OpenClosed"
	TypeIsSecure        = "IsSecure"
	TypeTemperature     = "Temperature"
	TypeColor           = "Color"
	TypeTimeStamp       = "TimeStamp"
	TypeDuration        = "Duration"
	TypeThinkerbellRule = "ThinkerbellRule"
)

// KindTypeMap returns the value type tags used to communicate with channels
// of the built in kinds.
func KindTypeMap() map[string]string {
	return map[string]string{
		"Ready":                 TypeUnit,
		"OnOff":                 TypeOnOff,
		"OpenClosed":            TypeOpenClosed,
		"CurrentTime":           TypeTimeStamp,
		"CurrentTimeOfDay":      TypeDuration,
		"RemainingTime":         TypeDuration,
		"OvenTemperature":       TypeTemperature,
		"TakeSnapshot":          TypeUnit,
		"AddThinkerbellRule":    TypeThinkerbellRule,
		"RemoveThinkerbellRule": TypeUnit,
		"ThinkerbellRuleSource": TypeString,
	}
}

// TypeRemap returns the value type tags for well known channels that declare
// no value type in their own description.
//
// Accreted from observed adapters; names are matched against the channel id.
func TypeRemap() map[string]string {
	return map[string]string{
		"Password":     TypeString,
		"Username":     TypeString,
		"ZwaveInclude": TypeIsSecure,
		"ZwaveExclude": TypeUnit,
	}
}

// TypeForChannel returns the remapped value type tag for a channel id.
func TypeForChannel(id string) (string, bool) {
	m := TypeRemap()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	norm := normalizeName(id)
	for _, name := range names {
		if strings.Contains(norm, normalizeName(name)) {
			return m[name], true
		}
	}
	return "", false
}

// normalizeName lower cases s and strips everything outside [a-z0-9], so
// that channel ids like "setter:zwave_include.v1@link.mozilla.org" compare
// equal regardless of separator style.
func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
