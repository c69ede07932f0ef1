package transport

import "encoding/json"

// Frame type discriminators, spec §4.6/§6.
const (
	FrameSubscribe    = "subscribe"
	FrameInput        = "input"
	FrameResize       = "resize"
	FrameTmuxControl  = "tmux_control"
	FramePtyList      = "pty_list"
	FramePtyOutput    = "pty_output"
	FramePtyExit      = "pty_exit"
	FrameTriggerFired = "trigger_fired"
	FramePtyHighlight = "pty_highlight"
)

const (
	maxFramePayload = 256 * 1024
	maxInputData    = 64 * 1024
	minColsRows     = 1
	maxColsRows     = 1000
	minScrollLines  = 1
	maxScrollLines  = 200
)

// InboundFrame is the discriminated union of client->server messages,
// spec §6's frame protocol.
type InboundFrame struct {
	Type      string `json:"type"`
	PtyID     string `json:"ptyId"`
	Data      string `json:"data,omitempty"`
	Cols      int    `json:"cols,omitempty"`
	Rows      int    `json:"rows,omitempty"`
	Direction string `json:"direction,omitempty"`
	Lines     int    `json:"lines,omitempty"`
}

// ParseInboundFrame decodes and validates a raw client frame. Any
// validation failure returns ok=false so the caller rejects it silently,
// per spec §4.6's "reject silently on any failure."
func ParseInboundFrame(raw []byte) (InboundFrame, bool) {
	if len(raw) > maxFramePayload {
		return InboundFrame{}, false
	}

	var f InboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return InboundFrame{}, false
	}

	switch f.Type {
	case FrameSubscribe:
		if f.PtyID == "" {
			return InboundFrame{}, false
		}
	case FrameInput:
		if f.PtyID == "" || len(f.Data) > maxInputData {
			return InboundFrame{}, false
		}
	case FrameResize:
		if f.PtyID == "" || !inRange(f.Cols, minColsRows, maxColsRows) || !inRange(f.Rows, minColsRows, maxColsRows) {
			return InboundFrame{}, false
		}
	case FrameTmuxControl:
		if f.PtyID == "" || (f.Direction != "up" && f.Direction != "down") || !inRange(f.Lines, minScrollLines, maxScrollLines) {
			return InboundFrame{}, false
		}
	default:
		return InboundFrame{}, false
	}

	return f, true
}

func inRange(v, lo, hi int) bool {
	return v >= lo && v <= hi
}

// OutboundFrame types, spec §6. Encoded individually rather than through
// one struct since each has a distinct, non-overlapping payload shape.

type PtyListFrame struct {
	Type string `json:"type"`
	Ptys []any  `json:"ptys"`
}

type PtyOutputFrame struct {
	Type  string `json:"type"`
	PtyID string `json:"ptyId"`
	Data  string `json:"data"`
}

type PtyExitFrame struct {
	Type   string `json:"type"`
	PtyID  string `json:"ptyId"`
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
}

type TriggerFiredFrame struct {
	Type    string `json:"type"`
	PtyID   string `json:"ptyId"`
	Trigger string `json:"trigger"`
	Match   string `json:"match"`
	Line    string `json:"line"`
	Ts      int64  `json:"ts"`
}

type PtyHighlightFrame struct {
	Type   string `json:"type"`
	PtyID  string `json:"ptyId"`
	Reason string `json:"reason"`
	TTLMs  int    `json:"ttlMs"`
}
