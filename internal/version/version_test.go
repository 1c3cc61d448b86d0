package version

import (
	"runtime"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	info := Get()
	if info.Version != "dev" {
		t.Errorf("Version = %q, want dev", info.Version)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	if info.Commit == "" {
		t.Error("Commit must never be empty")
	}
}

func TestGetKeepsLinkedCommit(t *testing.T) {
	saved := Commit
	t.Cleanup(func() { Commit = saved })
	Commit = "abc1234"

	if got := Get().Commit; got != "abc1234" {
		t.Errorf("Commit = %q, want abc1234", got)
	}
}

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{
			name: "defaults",
			info: Info{Version: "dev", Commit: "none", Date: "unknown"},
			want: "athena dev (commit: none, built: unknown)",
		},
		{
			name: "release",
			info: Info{Version: "v0.3.0", Commit: "abc1234", Date: "2026-01-01T00:00:00Z"},
			want: "athena v0.3.0 (commit: abc1234, built: 2026-01-01T00:00:00Z)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShortRevision(t *testing.T) {
	if got := shortRevision("0123456789abcdef0123"); got != "0123456789ab" {
		t.Errorf("got %q", got)
	}
	if got := shortRevision("abc"); got != "abc" {
		t.Errorf("got %q", got)
	}
}
