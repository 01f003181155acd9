package recommendation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndmx/upscale/internal/domain/catalog"
)

func modules() []catalog.Module {
	// Deliberately out of order.
	return []catalog.Module{
		{ID: "m3", Position: 3, Title: "Ethical AI in Security"},
		{ID: "m1", Position: 1, Title: "Intro to AI Threats"},
		{ID: "m4", Position: 4, Title: "Capstone"},
		{ID: "m2", Position: 2, Title: "Defensive AI Tools"},
	}
}

func TestRecommend_WalksModulesInPositionOrder(t *testing.T) {
	completed := map[string]bool{}
	var got []int

	for {
		next := Recommend(modules(), completed)
		if next == nil {
			break
		}
		got = append(got, next.Position)
		completed[next.ID] = true
	}

	assert.Equal(t, []int{1, 2, 3, 4}, got)
}

func TestRecommend_SkipsCompletedOutOfOrder(t *testing.T) {
	next := Recommend(modules(), map[string]bool{"m1": true, "m3": true})

	require.NotNil(t, next)
	assert.Equal(t, "m2", next.ID)
}

func TestRecommend_NilOnlyWhenAllComplete(t *testing.T) {
	assert.NotNil(t, Recommend(modules(), map[string]bool{"m1": true, "m2": true, "m3": true}))
	assert.Nil(t, Recommend(modules(), map[string]bool{"m1": true, "m2": true, "m3": true, "m4": true}))
	assert.Nil(t, Recommend(nil, nil))
}

func TestRecommend_DoesNotReorderInput(t *testing.T) {
	in := modules()
	_ = Recommend(in, nil)
	assert.Equal(t, "m3", in[0].ID)
}

func TestCompletionRatio(t *testing.T) {
	assert.Equal(t, 0.0, CompletionRatio(nil, nil))
	assert.Equal(t, 0.25, CompletionRatio(modules(), map[string]bool{"m2": true}))
	assert.Equal(t, 1.0, CompletionRatio(modules(), map[string]bool{"m1": true, "m2": true, "m3": true, "m4": true}))
}
