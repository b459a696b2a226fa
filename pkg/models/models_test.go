package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewIDPrefixes(t *testing.T) {
	cases := []struct {
		object string
		prefix string
	}{
		{ObjectAssistant, "asst_"},
		{ObjectThread, "thread_"},
		{ObjectMessage, "msg_"},
		{ObjectRun, "run_"},
		{ObjectRunStep, "step_"},
	}
	for _, tc := range cases {
		id := NewID(tc.object)
		if !strings.HasPrefix(id, tc.prefix) {
			t.Errorf("NewID(%q) = %q, want prefix %q", tc.object, id, tc.prefix)
		}
		if len(id) <= len(tc.prefix) {
			t.Errorf("NewID(%q) = %q, missing random part", tc.object, id)
		}
	}
}

func TestTextContentRoundTrip(t *testing.T) {
	for _, text := range []string{"", "hi", "multi\nline", "中文内容"} {
		msg := &Message{Content: TextContent(text)}
		if got := msg.PlainText(); got != text {
			t.Errorf("PlainText() = %q, want %q", got, text)
		}
	}
}

func TestTextContentWireFormat(t *testing.T) {
	data, err := json.Marshal(TextContent("hello"))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `[{"type":"text","text":[{"value":"hello"}]}]`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestNewListCursors(t *testing.T) {
	msgs := []*Message{{ID: "msg_1"}, {ID: "msg_2"}, {ID: "msg_3"}}
	l := NewList(msgs, func(m *Message) string { return m.ID }, false)
	if l.Object != ObjectList {
		t.Errorf("Object = %q", l.Object)
	}
	if l.FirstID != "msg_1" || l.LastID != "msg_3" {
		t.Errorf("cursors = %q/%q", l.FirstID, l.LastID)
	}

	empty := NewList(nil, func(m *Message) string { return m.ID }, false)
	if empty.FirstID != "" || empty.LastID != "" {
		t.Errorf("empty list cursors = %q/%q", empty.FirstID, empty.LastID)
	}
}

func TestRunMetaBool(t *testing.T) {
	r := &Run{Metadata: map[string]any{"stream": true, "flag": "yes"}}
	if !r.MetaBool("stream") {
		t.Error("MetaBool(stream) = false")
	}
	if r.MetaBool("missing") || r.MetaBool("flag") {
		t.Error("non-bool values report true")
	}
	var nilRun Run
	if nilRun.MetaBool("x") {
		t.Error("MetaBool on nil metadata = true")
	}
}
