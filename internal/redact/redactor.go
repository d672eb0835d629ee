// Package redact keeps secrets out of log output. A Redactor knows the
// secret values of a configuration and a few well-known token shapes;
// Handler applies it to every record before it reaches the real handler.
package redact

import (
	"net/url"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Placeholder replaces every redacted secret.
const Placeholder = "***REDACTED***"

// secretKey matches configuration keys whose values are secrets.
var secretKey = regexp.MustCompile(`(?i)(secret|token|password|pass|key|credential)`)

// Redactor replaces known secrets in strings. It is safe for concurrent
// use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// New returns a Redactor loaded with DefaultPatterns.
func New() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddLiteral registers a secret value. Values shorter than four bytes are
// ignored; redacting them would mangle ordinary text.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < 4 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// AddYAML registers the scalar values found under secret-looking keys of
// node, at any depth.
func (r *Redactor) AddYAML(node *yaml.Node) {
	if node == nil {
		return
	}
	switch node.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, child := range node.Content {
			r.AddYAML(child)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			if val.Kind == yaml.ScalarNode && secretKey.MatchString(key.Value) {
				r.AddLiteral(val.Value)
				continue
			}
			r.AddYAML(val)
		}
	}
}

// AddURL registers the password of a URL carrying user info.
func (r *Redactor) AddURL(raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return
	}
	if pass, ok := u.User.Password(); ok {
		r.AddLiteral(pass)
	}
}

// Redact returns s with every known secret replaced by Placeholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns, literals := r.patterns, r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, Placeholder)
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, "${pre}"+Placeholder+"${post}")
	}
	return s
}

// DefaultPatterns matches credentials that show up in HTTP and cloud
// plumbing. The groups named pre and post survive redaction.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Bearer tokens.
		regexp.MustCompile(`(?P<pre>(?i:bearer) )[A-Za-z0-9\-._~+/]{8,}=*`),
		// Passwords in URLs.
		regexp.MustCompile(`(?P<pre>://[^:/@\s]+:)[^@/\s]+(?P<post>@)`),
		// AWS access key IDs.
		regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
		// GitHub tokens.
		regexp.MustCompile(`(ghp_|gho_|ghs_|github_pat_)[A-Za-z0-9_]{20,}`),
	}
}
