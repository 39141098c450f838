package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		want  Label
		valid bool
	}{
		{
			name:  "simple label",
			line:  "GitOrigin-RevId: abc123",
			want:  Label{Name: "GitOrigin-RevId", Value: "abc123"},
			valid: true,
		},
		{
			name:  "underscore and digits in name",
			line:  "Change_Id2: I4f5",
			want:  Label{Name: "Change_Id2", Value: "I4f5"},
			valid: true,
		},
		{
			name:  "empty value",
			line:  "Signed-off-by: ",
			want:  Label{Name: "Signed-off-by", Value: ""},
			valid: true,
		},
		{
			name:  "missing separator space",
			line:  "NotALabel:value",
			valid: false,
		},
		{
			name:  "plain prose",
			line:  "this is just text",
			valid: false,
		},
		{
			name:  "leading whitespace disqualifies",
			line:  "  GitOrigin-RevId: abc",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLabel(tt.line)
			require.Equal(t, tt.valid, ok)
			if tt.valid {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestMessageLabels(t *testing.T) {
	msg := Parse("Import change\n\nSome description mentioning Rev-Id: in prose? no.\n\nRev-Id: 12\nOther: x\nRev-Id: 34\n")

	labels := msg.Labels()
	require.Len(t, labels, 3)
	assert.Equal(t, Label{Name: "Rev-Id", Value: "12"}, labels[0])
	assert.Equal(t, Label{Name: "Other", Value: "x"}, labels[1])
	assert.Equal(t, Label{Name: "Rev-Id", Value: "34"}, labels[2])

	value, found := msg.LastLabelValue("Rev-Id")
	require.True(t, found)
	assert.Equal(t, "34", value, "last occurrence wins")

	_, found = msg.LastLabelValue("rev-id")
	assert.False(t, found, "label names are case-sensitive")
}

func TestMessageAddLabel(t *testing.T) {
	t.Run("appends to text without trailing newline", func(t *testing.T) {
		msg := Parse("Summary line")
		require.True(t, msg.AddLabel("GitOrigin-RevId", "deadbeef"))
		assert.Equal(t, "Summary line\nGitOrigin-RevId: deadbeef\n", msg.String())
	})

	t.Run("skips when label already present", func(t *testing.T) {
		msg := Parse("Summary\n\nGitOrigin-RevId: original\n")
		require.False(t, msg.AddLabel("GitOrigin-RevId", "different"))
		assert.Equal(t, "Summary\n\nGitOrigin-RevId: original\n", msg.String())

		value, found := msg.LastLabelValue("GitOrigin-RevId")
		require.True(t, found)
		assert.Equal(t, "original", value)
	})

	t.Run("empty message", func(t *testing.T) {
		msg := Parse("")
		require.True(t, msg.AddLabel("A", "b"))
		assert.Equal(t, "A: b\n", msg.String())
	})

	t.Run("round-trips untouched text", func(t *testing.T) {
		text := "Summary\n\nbody text\nMore: stuff\n"
		assert.Equal(t, text, Parse(text).String())
	})
}
