package security

import (
	"net/url"
	"strings"
)

// DefaultSuspiciousPatterns - пути, которые запрашивают сканеры уязвимостей.
// Шаблон с завершающим "/" или без него сравнивается как префикс сегмента пути.
var DefaultSuspiciousPatterns = []string{
	"/wp-admin",
	"/wp-login.php",
	"/wp-content",
	"/wp-includes",
	"/xmlrpc.php",
	"/.env",
	"/.git",
	"/.svn",
	"/.aws",
	"/.ds_store",
	"/phpmyadmin",
	"/pma",
	"/cgi-bin",
	"/vendor/phpunit",
	"/actuator",
	"/server-status",
	"/config.php",
	"/admin.php",
	"/boaform",
	"/hnap1",
}

// PathGuard сверяет путь запроса со списком сканерских шаблонов.
type PathGuard struct {
	patterns []string
}

// NewPathGuard создаёт проверку путей. Пустой список означает набор по умолчанию.
func NewPathGuard(patterns []string) *PathGuard {
	if len(patterns) == 0 {
		patterns = DefaultSuspiciousPatterns
	}
	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		normalized = append(normalized, strings.TrimSuffix(p, "/"))
	}
	return &PathGuard{patterns: normalized}
}

// Match возвращает сработавший шаблон, если путь подозрителен.
// Обход каталогов ("..") блокируется всегда, в том числе в URL-кодировке.
func (g *PathGuard) Match(rawPath string) (string, bool) {
	p := strings.ToLower(rawPath)
	if decoded, err := url.PathUnescape(p); err == nil {
		p = decoded
	}

	for _, seg := range strings.Split(strings.ReplaceAll(p, "\\", "/"), "/") {
		if seg == ".." {
			return "..", true
		}
	}

	for _, pattern := range g.patterns {
		if idx := strings.Index(p, pattern); idx >= 0 {
			rest := p[idx+len(pattern):]
			if rest == "" || rest[0] == '/' || rest[0] == '?' || rest[0] == '.' {
				return pattern, true
			}
		}
	}
	return "", false
}
