package logging

import "testing"

func TestLevelString(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LogLevel(42), "unknown(42)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	orig := GetLevel()
	defer SetLevel(orig)

	SetLevel(LevelError)
	if got := GetLevel(); got != LevelError {
		t.Errorf("GetLevel() = %v, want %v", got, LevelError)
	}

	if IsDebugEnabled() {
		t.Error("IsDebugEnabled() = true at error level")
	}

	SetLevel(LevelDebug)
	if !IsDebugEnabled() {
		t.Error("IsDebugEnabled() = false at debug level")
	}
}
