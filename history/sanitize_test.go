package history

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/companion/types"
)

func TestSanitizePathComponent(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"plain", "shizuku", true},
		{"uid", "2026-01-02_03-04-05_0123456789abcdef0123456789abcdef", true},
		{"spaces and dots", "my conf.v2", true},
		{"cjk", "角色配置", true},
		{"empty", "", false},
		{"dot", ".", false},
		{"dotdot", "..", false},
		{"slash", "a/b", false},
		{"backslash", `a\b`, false},
		{"nul", "a\x00b", false},
		{"control", "a\nb", false},
		{"too long", strings.Repeat("a", 256), false},
		{"max length", strings.Repeat("a", 255), true},
		{"invalid utf8", "a\xffb", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizePathComponent(tt.input)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.input, got)
				return
			}
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrInvalidIdentifier))
		})
	}
}

func TestSanitizePathComponent_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[A-Za-z0-9_\- ]{1,64}`).Draw(t, "s")
		if s == "." || s == ".." {
			t.Skip()
		}
		got, err := SanitizePathComponent(s)
		if err != nil {
			t.Fatalf("rejected %q: %v", s, err)
		}
		if got != s {
			t.Fatalf("rewrote %q to %q", s, got)
		}
		// 再次校验结果不变
		again, err := SanitizePathComponent(got)
		if err != nil || again != got {
			t.Fatalf("not idempotent for %q", s)
		}
	})
}

func TestSanitizePathComponent_SeparatorsRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prefix := rapid.StringMatching(`[a-z]{0,10}`).Draw(t, "prefix")
		suffix := rapid.StringMatching(`[a-z]{0,10}`).Draw(t, "suffix")
		sep := rapid.SampledFrom([]string{"/", `\`, "\x00"}).Draw(t, "sep")
		if _, err := SanitizePathComponent(prefix + sep + suffix); err == nil {
			t.Fatalf("accepted separator %q", sep)
		}
	})
}
