package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEntryTimestampLayouts(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"不带时区带微秒", "2025-01-02T03:04:05.123456", time.Date(2025, 1, 2, 3, 4, 5, 123456000, time.UTC)},
		{"不带时区", "2025-01-02T03:04:05", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"RFC3339", "2025-01-02T03:04:05Z", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"带偏移", "2025-01-02T11:04:05+08:00", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := []byte(`[{"question":"q","answer":"a","sections_used":["SKILLS"],"timestamp":"` + tc.raw + `","question_hash":"h","is_easy":true}]`)
			var entries []MemoryEntry
			require.NoError(t, json.Unmarshal(data, &entries))
			require.Len(t, entries, 1)
			assert.True(t, tc.want.Equal(entries[0].CreatedAt), "时间戳 %s 解析结果为 %v", tc.raw, entries[0].CreatedAt)
			assert.Equal(t, "q", entries[0].Question)
			assert.Equal(t, []SectionName{SectionSkills}, entries[0].SectionsUsed)
			assert.Equal(t, "h", entries[0].Fingerprint)
			assert.True(t, entries[0].IsBroad)
		})
	}
}

func TestMemoryEntryTimestampRoundTrip(t *testing.T) {
	in := MemoryEntry{Question: "q", Answer: "a", CreatedAt: time.Date(2026, 3, 4, 5, 6, 7, 890, time.UTC)}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out MemoryEntry
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
}

func TestMemoryEntryRejectsBadTimestamp(t *testing.T) {
	var e MemoryEntry
	assert.Error(t, json.Unmarshal([]byte(`{"question":"q","timestamp":"yesterday"}`), &e))

	require.NoError(t, json.Unmarshal([]byte(`{"question":"q"}`), &e), "缺少时间戳时使用零值")
	assert.True(t, e.CreatedAt.IsZero())
}
