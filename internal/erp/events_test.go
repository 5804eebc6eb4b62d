package erp

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivecal/internal/model"
)

func TestDecodeClientEvents(t *testing.T) {
	data := []byte(`[
	  {"id":"101","title":"<b>홍길동</b> 09:00~10:30","start":"2025-06-10T09:00:00","end":"","className":["fc-event","dobong-3"],"resourceId":""},
	  {"id":"102","title":"김철수","start":"2025년 6월 11일 오후 2:00","end":"","className":"dobong-5","resourceId":"dobong-5"},
	  {"id":"103","title":"broken","start":"2025년 6월 40일","end":"","className":null,"resourceId":""}
	]`)

	got, err := decodeClientEvents(data, kst)
	require.NoError(t, err)

	want := []model.RawEvent{
		{Source: "erp", ID: "101", Title: "홍길동 09:00~10:30", Start: "2025-06-10T09:00:00", ClassName: model.ClassList{"fc-event", "dobong-3"}},
		{Source: "erp", ID: "102", Title: "김철수", Start: "2025-06-11T14:00:00", ClassName: model.ClassList{"dobong-5"}, ResourceID: "dobong-5"},
		{Source: "erp", ID: "103", Title: "broken", Start: "2025년 6월 40일"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded events mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeClientEventsNotReady(t *testing.T) {
	for _, in := range []string{"", "null", "  null "} {
		_, err := decodeClientEvents([]byte(in), kst)
		assert.ErrorIs(t, err, ErrCalendarNotReady)
	}
}

func TestDecodeClientEventsBadJSON(t *testing.T) {
	_, err := decodeClientEvents([]byte(`{"id":1}`), kst)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCalendarNotReady)
}

func TestJSCallQuotesArguments(t *testing.T) {
	got, err := jsCall(gotoDateScript, `#cal"x`, "2025-06-09")
	require.NoError(t, err)
	assert.Contains(t, got, `})("#cal\"x", "2025-06-09")`)
}
