package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathGuard_Match(t *testing.T) {
	g := NewPathGuard(nil)

	blocked := []string{
		"/wp-admin",
		"/wp-admin/install.php",
		"/WP-LOGIN.PHP",
		"/.env",
		"/api/.env",
		"/.git/config",
		"/phpmyadmin/index.php",
		"/cgi-bin/luci",
		"/vendor/phpunit/phpunit/src/Util/PHP/eval-stdin.php",
		"/static/../../etc/passwd",
		"/static/%2e%2e/secret",
		"/actuator/health",
	}
	for _, p := range blocked {
		_, ok := g.Match(p)
		assert.True(t, ok, p)
	}

	allowed := []string{
		"/",
		"/api/v1/courses",
		"/api/v1/courses/abc/modules/1",
		"/api/v1/environment",
		"/health",
		"/api/v1/payments/callback",
	}
	for _, p := range allowed {
		_, ok := g.Match(p)
		assert.False(t, ok, p)
	}
}

func TestPathGuard_CustomPatterns(t *testing.T) {
	g := NewPathGuard([]string{"admin/", " /Internal "})

	assert.Equal(t, []string{"/admin", "/internal"}, g.patterns)

	pattern, ok := g.Match("/internal/metrics")
	assert.True(t, ok)
	assert.Equal(t, "/internal", pattern)

	_, ok = g.Match("/wp-admin")
	assert.False(t, ok)
}
