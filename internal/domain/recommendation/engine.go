// Package recommendation выбирает следующий модуль для изучения.
// Функции чистые: без хранилища и без кэширования, результат
// пересчитывается при каждом чтении.
package recommendation

import (
	"sort"

	"github.com/ndmx/upscale/internal/domain/catalog"
)

// Recommend возвращает первый незавершённый модуль в порядке возрастания
// позиции или nil, если курс пройден полностью (или модулей нет).
// completed - множество ID завершённых модулей.
func Recommend(modules []catalog.Module, completed map[string]bool) *catalog.Module {
	ordered := make([]catalog.Module, len(modules))
	copy(ordered, modules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	for i := range ordered {
		if !completed[ordered[i].ID] {
			next := ordered[i]
			return &next
		}
	}
	return nil
}

// CompletionRatio возвращает долю завершённых модулей в [0, 1].
// Для курса без модулей возвращает 0.
func CompletionRatio(modules []catalog.Module, completed map[string]bool) float64 {
	if len(modules) == 0 {
		return 0
	}
	done := 0
	for _, m := range modules {
		if completed[m.ID] {
			done++
		}
	}
	return float64(done) / float64(len(modules))
}
