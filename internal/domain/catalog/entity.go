// Package catalog содержит каталог курсов и их упорядоченных модулей.
package catalog

import (
	"sort"
	"strings"
	"unicode"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Module - единица содержания курса. Position начинается с 1 и уникальна в курсе.
type Module struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`
	Position int    `json:"position"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

// Course - курс с модулями, упорядоченными по позиции.
type Course struct {
	ID          string   `json:"id"`
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Modules     []Module `json:"modules"`
}

// SortModules упорядочивает модули по позиции.
func (c *Course) SortModules() {
	sort.SliceStable(c.Modules, func(i, j int) bool {
		return c.Modules[i].Position < c.Modules[j].Position
	})
}

// Module возвращает модуль по позиции.
func (c *Course) Module(position int) (Module, bool) {
	for _, m := range c.Modules {
		if m.Position == position {
			return m, true
		}
	}
	return Module{}, false
}

// Slugify строит slug из заголовка: "Web App Development with AI" -> "web-app-development-with-ai".
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
