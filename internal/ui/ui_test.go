package ui

import (
	"strings"
	"testing"

	"github.com/groblegark/tempo/internal/model"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		secs int64
		want string
	}{
		{0, "0s"},
		{59, "59s"},
		{60, "1m 0s"},
		{3599, "59m 59s"},
		{3600, "1h 0m 0s"},
		{5025, "1h 23m 45s"},
		{-5, "0s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.secs); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}

func TestRenderState(t *testing.T) {
	got := RenderState(model.StateTracking)
	if !strings.Contains(got, "tracking") {
		t.Errorf("RenderState = %q", got)
	}

	ForceNoColor()
	defer func() { noColor = false }()
	if got := RenderState(model.StatePaused); got != "paused" {
		t.Errorf("RenderState without color = %q", got)
	}
}
