package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		msg  string
		want Command
	}{
		{"key:Enter", KeyEvent{Name: "Enter"}},
		{"key:a", KeyEvent{Name: "a"}},
		{"key:", KeyEvent{Name: ""}},
		{"key: ", KeyEvent{Name: " "}},
		{"key:key:Left", KeyEvent{Name: "key:Left"}},
		{"layout:KB_HSU", LayoutChange{ID: "KB_HSU"}},
		{"layout:", LayoutChange{ID: ""}},
		{"layout: KB_ET ", LayoutChange{ID: " KB_ET "}},
		{"foo:bar", Unrecognized{Raw: "foo:bar"}},
		{"Key:Enter", Unrecognized{Raw: "Key:Enter"}},
		{"", Unrecognized{Raw: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCommand(tt.msg))
		})
	}
}
