package config

import (
	"regexp"
	"strings"
)

// proxyPattern accepts http://login:password@ip:port only
var proxyPattern = regexp.MustCompile(`^http://(?P<login>[^:]+):(?P<password>[^@]+)@(?P<ip>[0-9]+\.[0-9]+\.[0-9]+\.[0-9]+):(?P<port>[0-9]+)$`)

// ValidateProxy returns the trimmed proxy link and whether it is usable.
// An invalid link comes back empty so callers fall back to a direct connection.
func ValidateProxy(link string) (string, bool) {
	link = strings.TrimSpace(link)
	if !proxyPattern.MatchString(link) {
		return "", false
	}
	return link, true
}
