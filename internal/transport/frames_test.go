package transport

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestParseInboundFrame_OversizedPayloadRejected(t *testing.T) {
	huge := bytes.Repeat([]byte("a"), maxFramePayload+1)
	_, ok := ParseInboundFrame(huge)
	if ok {
		t.Fatalf("expected oversized payload to be rejected")
	}
}

func TestParseInboundFrame_ResizeOutOfRangeRejected(t *testing.T) {
	cases := []InboundFrame{
		{Type: FrameResize, PtyID: "a", Cols: 0, Rows: 24},
		{Type: FrameResize, PtyID: "a", Cols: 1001, Rows: 24},
		{Type: FrameResize, PtyID: "a", Cols: 80, Rows: 0},
		{Type: FrameResize, PtyID: "a", Cols: 80, Rows: 1001},
	}
	for _, c := range cases {
		raw, _ := json.Marshal(c)
		if _, ok := ParseInboundFrame(raw); ok {
			t.Fatalf("expected out-of-range resize to be rejected: %+v", c)
		}
	}
}

func TestParseInboundFrame_ResizeInRangeAccepted(t *testing.T) {
	raw, _ := json.Marshal(InboundFrame{Type: FrameResize, PtyID: "a", Cols: 80, Rows: 24})
	f, ok := ParseInboundFrame(raw)
	if !ok || f.Cols != 80 || f.Rows != 24 {
		t.Fatalf("expected valid resize to be accepted, got %+v ok=%v", f, ok)
	}
}

func TestParseInboundFrame_TmuxControlLinesOutOfRangeRejected(t *testing.T) {
	raw, _ := json.Marshal(InboundFrame{Type: FrameTmuxControl, PtyID: "a", Direction: "up", Lines: 201})
	if _, ok := ParseInboundFrame(raw); ok {
		t.Fatalf("expected lines > 200 to be rejected")
	}
}

func TestParseInboundFrame_InputOverLimitRejected(t *testing.T) {
	huge := InboundFrame{Type: FrameInput, PtyID: "a", Data: string(bytes.Repeat([]byte("x"), maxInputData+1))}
	raw, _ := json.Marshal(huge)
	if _, ok := ParseInboundFrame(raw); ok {
		t.Fatalf("expected oversized input data to be rejected")
	}
}

func TestParseInboundFrame_UnknownTypeRejected(t *testing.T) {
	raw, _ := json.Marshal(InboundFrame{Type: "bogus", PtyID: "a"})
	if _, ok := ParseInboundFrame(raw); ok {
		t.Fatalf("expected unknown frame type to be rejected")
	}
}
