/*
Copyright 2025 The Citewatch Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package domains holds the one domain-normalization rule every component
// shares: lowercase host, www. stripped, subdomains match their parent.
package domains

import (
	"net/url"
	"regexp"
	"strings"
)

// exactDomainRe validates a bare registrable domain like "acme.com".
var exactDomainRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]\.[a-z]{2,}$`)

// Normalize lowercases a domain and strips a leading www.
func Normalize(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimSuffix(domain, ".")
	return strings.TrimPrefix(domain, "www.")
}

// Valid reports whether domain (after normalization) is an acceptable bare
// domain.
func Valid(domain string) bool {
	return exactDomainRe.MatchString(Normalize(domain))
}

// FromURL extracts the normalized host of rawURL. ok is false for blank
// hosts and opaque schemes.
func FromURL(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}
	host := u.Hostname()
	if host == "" {
		return "", false
	}
	return Normalize(host), true
}

// Matches reports whether host belongs to target: exact match or a
// subdomain of it. Both sides are normalized first.
func Matches(host, target string) bool {
	host = Normalize(host)
	target = Normalize(target)
	if host == "" || target == "" {
		return false
	}
	return host == target || strings.HasSuffix(host, "."+target)
}
