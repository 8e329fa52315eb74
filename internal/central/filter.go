package central

import "strings"

// ScanFilter restricts which freshly discovered devices enter the registry.
// The zero value accepts everything.
type ScanFilter struct {
	Prefix string
}

// Matches reports whether a device passes the filter. An empty prefix
// accepts all devices; otherwise any of name, mac, or identity must start
// with the prefix. The comparison is case-sensitive and absent fields are
// treated as empty strings.
//
// The filter is applied only when a record is first created; advertisement
// updates for an already-registered device bypass it.
func (f ScanFilter) Matches(identity, name, mac string) bool {
	if f.Prefix == "" {
		return true
	}
	return strings.HasPrefix(name, f.Prefix) ||
		strings.HasPrefix(mac, f.Prefix) ||
		strings.HasPrefix(identity, f.Prefix)
}
