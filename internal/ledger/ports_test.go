package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeCurrentYear(t *testing.T) {
	assert.Equal(t, []int{2025, 2023, 2021}, MergeCurrentYear([]int{2023, 2021}, 2025))
	assert.Equal(t, []int{2025, 2024}, MergeCurrentYear([]int{2025, 2024}, 2025))
	assert.Equal(t, []int{2026, 2025, 2019}, MergeCurrentYear([]int{2019, 2026}, 2025))
	assert.Equal(t, []int{2025}, MergeCurrentYear(nil, 2025))
}
