package foxbox

import (
	"sort"
	"strings"

	"github.com/clbanning/mxj/v2"
)

// Service is the decoded description of a service as returned by the box.
type Service mxj.Map

// Channel is the decoded description of a single getter, setter, or channel
// entry of a service.
type Channel mxj.Map

// Role determines which channel mapping of a service a lookup scans.
type Role int

// Role values.
const (
	RoleGetter Role = iota
	RoleSetter
	RoleChannel
)

// ID returns the service id.
func (s Service) ID() string {
	v, _ := s["id"].(string)
	return v
}

// Adapter returns the id of the adapter managing the service.
func (s Service) Adapter() string {
	v, _ := s["adapter"].(string)
	return v
}

// IsAdapter reports whether the service is managed by an adapter whose id
// starts with prefix.
func (s Service) IsAdapter(prefix string) bool {
	return strings.HasPrefix(s.Adapter(), prefix)
}

// Property returns the named service property.
func (s Service) Property(name string) string {
	props, ok := s["properties"].(map[string]interface{})
	if !ok {
		return ""
	}
	v, _ := props[name].(string)
	return v
}

// HasProperties reports whether the service carries a properties block.
func (s Service) HasProperties() bool {
	_, ok := s["properties"].(map[string]interface{})
	return ok
}

// HasPropertyValue reports whether the named service property contains
// value. An empty value matches any service.
func (s Service) HasPropertyValue(name, value string) bool {
	return strings.Contains(s.Property(name), value)
}

// Tags returns the tags set on the service.
func (s Service) Tags() []string {
	raw, ok := s["tags"].([]interface{})
	if !ok {
		return nil
	}
	tags := make([]string, 0, len(raw))
	for _, v := range raw {
		if t, ok := v.(string); ok {
			tags = append(tags, t)
		}
	}
	return tags
}

// roleMaps returns the raw channel mappings of the service scanned for
// role. Services describe their channels either as separate getters and
// setters mappings, or as a single channels mapping whose entries are
// annotated with supports_fetch and supports_send.
func (s Service) roleMaps(role Role) []map[string]interface{} {
	var maps []map[string]interface{}
	add := func(name string) {
		if m, ok := s[name].(map[string]interface{}); ok {
			maps = append(maps, m)
		}
	}
	switch role {
	case RoleGetter:
		add("getters")
	case RoleSetter:
		add("setters")
	case RoleChannel:
		add("getters")
		add("setters")
		add("channels")
		return maps
	}
	if m, ok := s["channels"].(map[string]interface{}); ok {
		filtered := make(map[string]interface{}, len(m))
		for k, v := range m {
			if ch, ok := v.(map[string]interface{}); ok && supportsRole(ch, role) {
				filtered[k] = v
			}
		}
		maps = append(maps, filtered)
	}
	return maps
}

// supportsRole reports whether a channel description declares the fetch or
// send capability matching role. The capability field is a boolean on older
// boxes and a signature object on newer ones; anything but an explicit
// false counts as support.
func supportsRole(ch map[string]interface{}, role Role) bool {
	name := "supports_fetch"
	if role == RoleSetter {
		name = "supports_send"
	}
	v, ok := ch[name]
	if !ok {
		return false
	}
	b, isBool := v.(bool)
	return !isBool || b
}

// Keys returns the sorted channel keys of the service for role.
func (s Service) Keys(role Role) []string {
	var keys []string
	for _, m := range s.roleMaps(role) {
		for k := range m {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// FindBySubstring returns the first channel of the service, scanned for
// role in sorted key order, whose key contains term. A miss is not an
// error.
func (s Service) FindBySubstring(role Role, term string) (string, Channel, bool) {
	for _, m := range s.roleMaps(role) {
		for _, k := range sortedKeys(m) {
			if strings.Contains(k, term) {
				ch, _ := m[k].(map[string]interface{})
				return k, Channel(ch), true
			}
		}
	}
	return "", nil, false
}

// FindByKind returns the first channel of the service, scanned for role in
// sorted key order, whose declared kind tag equals kind.
func (s Service) FindByKind(role Role, kind string) (string, Channel, bool) {
	for _, m := range s.roleMaps(role) {
		for _, k := range sortedKeys(m) {
			ch, _ := m[k].(map[string]interface{})
			if tag, ok := Channel(ch).Kind(); ok && tag == kind {
				return k, Channel(ch), true
			}
		}
	}
	return "", nil, false
}

// sortedKeys returns the keys of m in sorted order.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ID returns the channel id.
func (ch Channel) ID() string {
	v, _ := ch["id"].(string)
	return v
}

// Kind returns the plain channel kind tag. Kinds are declared either as a
// bare string or as an extension object carrying the tag one level down.
func (ch Channel) Kind() (string, bool) {
	switch k := ch["kind"].(type) {
	case string:
		return k, true
	case map[string]interface{}:
		if tag, ok := k["kind"].(string); ok {
			return tag, true
		}
	}
	return "", false
}

// SendType returns the value type tag for values sent to the channel, when
// the channel declares one.
func (ch Channel) SendType() (string, bool) {
	return ch.valueType("supports_send.accepts.requires")
}

// FetchType returns the value type tag for values fetched from the channel,
// when the channel declares one.
func (ch Channel) FetchType() (string, bool) {
	return ch.valueType("supports_fetch.returns.requires")
}

// valueType resolves the declared value type tag of the channel: the
// requires declaration of newer boxes when present, the typ field of an
// extension kind, or the type of a built in kind. An unknown bare kind is
// used as the tag itself.
func (ch Channel) valueType(path string) (string, bool) {
	if ch == nil {
		return "", false
	}
	if s, err := mxj.Map(ch).ValueForPathString(path); err == nil && s != "" {
		return s, true
	}
	switch k := ch["kind"].(type) {
	case map[string]interface{}:
		if typ, ok := k["typ"].(string); ok && typ != "" {
			return typ, true
		}
	case string:
		if t, ok := KindTypeMap()[k]; ok {
			return t, true
		}
		if k != "" {
			return k, true
		}
	}
	return "", false
}

// BuildGetRequest builds the channels/get selector body for the channel id.
func BuildGetRequest(id string) mxj.Map {
	return mxj.Map{
		"id": id,
	}
}

// BuildSetRequest builds the channels/set body sending raw to the channel.
// The value type tag comes from the channel description when declared, and
// from the TypeRemap table otherwise. Unit values always encode as an empty
// array regardless of raw.
func BuildSetRequest(id string, ch Channel, raw string) (mxj.Map, error) {
	tag, ok := ch.SendType()
	if !ok {
		tag, ok = TypeForChannel(id)
	}
	if !ok {
		return nil, ErrUnknownType
	}
	var value interface{} = raw
	if tag == TypeUnit {
		value = []interface{}{}
	}
	return mxj.Map{
		"select": map[string]interface{}{"id": id},
		"value":  map[string]interface{}{tag: value},
	}, nil
}

// DecodeResponse extracts the value for the channel id from a channels/get
// response body. The response maps each channel id to a single tagged
// value; the tag must match the type the channel declares (or remaps to).
func DecodeResponse(id string, body mxj.Map, ch Channel) (interface{}, error) {
	raw, ok := body[id]
	if !ok {
		return nil, ErrMissingKey
	}
	vals, ok := raw.(map[string]interface{})
	if !ok {
		return nil, ErrTypeMismatch
	}
	tag, ok := ch.FetchType()
	if !ok {
		tag, ok = TypeForChannel(id)
	}
	if !ok {
		return nil, ErrUnknownType
	}
	v, ok := vals[tag]
	if !ok {
		return nil, ErrTypeMismatch
	}
	return v, nil
}

// SortServices orders services by adapter id, then service id.
func SortServices(services []Service) {
	sort.Slice(services, func(i, j int) bool {
		if a, b := services[i].Adapter(), services[j].Adapter(); a != b {
			return a < b
		}
		return services[i].ID() < services[j].ID()
	})
}
