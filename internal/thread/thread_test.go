package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModeValid(t *testing.T) {
	t.Parallel()

	assert.True(t, ModeFullBook.Valid())
	assert.True(t, ModeSelectedText.Valid())
	assert.False(t, Mode("").Valid())
	assert.False(t, Mode("pinned").Valid())
}

func TestValidateMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mode    Mode
		pinned  string
		wantErr bool
	}{
		{name: "full book without pinned text", mode: ModeFullBook},
		{name: "full book with pinned text is allowed", mode: ModeFullBook, pinned: "chapter one"},
		{name: "selected text with pinned text", mode: ModeSelectedText, pinned: "chapter one"},
		{name: "selected text without pinned text", mode: ModeSelectedText, wantErr: true},
		{name: "selected text with whitespace pinned text", mode: ModeSelectedText, pinned: "  \n\t", wantErr: true},
		{name: "unknown mode", mode: Mode("corpus"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validateMode(tt.mode, tt.pinned)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMode)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
