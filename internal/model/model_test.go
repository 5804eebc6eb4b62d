package model

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestClassListUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		json string
		want ClassList
	}{
		{"single string", `{"className":"fc-event dobong-7"}`, ClassList{"fc-event dobong-7"}},
		{"list", `{"className":["foo","dobong-7"]}`, ClassList{"foo", "dobong-7"}},
		{"null", `{"className":null}`, nil},
		{"empty string", `{"className":""}`, nil},
		{"missing", `{}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev RawEvent
			require.NoError(t, json.Unmarshal([]byte(tt.json), &ev))
			if diff := cmp.Diff(tt.want, ev.ClassName); diff != "" {
				t.Errorf("ClassName mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassListUnmarshalRejectsObjects(t *testing.T) {
	var ev RawEvent
	err := json.Unmarshal([]byte(`{"className":{"a":1}}`), &ev)
	require.Error(t, err)
}

func TestRawEventCloneDoesNotShareClassList(t *testing.T) {
	orig := RawEvent{ID: "1", ClassName: ClassList{"a", "b"}}
	cp := orig.Clone()
	cp.ClassName[0] = "changed"
	require.Equal(t, "a", orig.ClassName[0])
}

func TestWeekRangeContains(t *testing.T) {
	w := WeekRange{
		StartDate: "2025-06-09",
		EndDate:   "2025-06-15",
		Days:      [7]string{"2025-06-09", "2025-06-10", "2025-06-11", "2025-06-12", "2025-06-13", "2025-06-14", "2025-06-15"},
	}
	require.True(t, w.Contains("2025-06-12"))
	require.False(t, w.Contains("2025-06-16"))
}
