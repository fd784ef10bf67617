package tracedata

import "testing"

func TestAttributesNumberAndText(t *testing.T) {
	attrs := Attributes{
		AttrOMPTargetRegionID: {Number: 42, HasNumber: true},
		"comment":             {Text: "hello"},
	}
	if v, ok := attrs.Number(AttrOMPTargetRegionID); !ok || v != 42 {
		t.Errorf("Number(%s) = %d, %v; want 42, true", AttrOMPTargetRegionID, v, ok)
	}
	if _, ok := attrs.Text(AttrOMPTargetRegionID); ok {
		t.Errorf("Text(%s) should fail on a numeric attribute", AttrOMPTargetRegionID)
	}
	if v, ok := attrs.Text("comment"); !ok || v != "hello" {
		t.Errorf("Text(comment) = %q, %v; want hello, true", v, ok)
	}
	if _, ok := attrs.Number("missing"); ok {
		t.Error("Number(missing) should fail")
	}
}

func TestEventKindString(t *testing.T) {
	if got := EventMPISend.String(); got != "MPISend" {
		t.Errorf("EventMPISend.String() = %q, want MPISend", got)
	}
	if got := EventKind(200).String(); got == "" {
		t.Error("unknown EventKind.String() should not be empty")
	}
}
