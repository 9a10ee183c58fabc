package domain

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestTimeIndex(t *testing.T) {
	ti := TimeIndex{}
	ti.Add("a.nc", []time.Time{
		time.Date(2001, 12, 16, 0, 0, 0, 0, time.UTC),
		time.Date(2000, 1, 16, 0, 0, 0, 0, time.UTC),
		time.Date(2000, 2, 15, 0, 0, 0, 0, time.UTC),
	})
	ti.Add("b.nc", nil)

	if got := ti.Years("a.nc"); !reflect.DeepEqual(got, []int{2000, 2001}) {
		t.Errorf("Years = %v", got)
	}
	if got := ti.Years("missing.nc"); len(got) != 0 {
		t.Errorf("Years of unindexed file = %v", got)
	}
	if !ti.HasYear("a.nc", map[int]bool{2001: true}) || ti.HasYear("b.nc", map[int]bool{2001: true}) {
		t.Errorf("HasYear mismatch")
	}
	if !ti.HasMonth("a.nc", 2) || ti.HasMonth("a.nc", 7) {
		t.Errorf("HasMonth mismatch")
	}
	if !ti.HasYearIn("a.nc", 2001, 2005) || ti.HasYearIn("a.nc", 2002, 2005) {
		t.Errorf("HasYearIn mismatch")
	}
}

func TestTimeIndex_JSON(t *testing.T) {
	ti := TimeIndex{}
	ti.Add("/model/2000/run.nc", []time.Time{time.Date(2000, 3, 1, 0, 0, 0, 0, time.UTC)})

	var buf bytes.Buffer
	if err := ti.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(buf.String(), `"month": 3`) {
		t.Errorf("unexpected JSON: %s", buf.String())
	}
	back, err := ReadTimeIndex(&buf)
	if err != nil {
		t.Fatalf("ReadTimeIndex: %v", err)
	}
	if !reflect.DeepEqual(ti, back) {
		t.Errorf("round trip: got %v, want %v", back, ti)
	}

	if _, err := ReadTimeIndex(strings.NewReader("[1, 2]")); err == nil {
		t.Errorf("expected error for malformed index")
	}
}
