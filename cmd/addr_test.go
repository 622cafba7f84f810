package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "host and port", addr: "127.0.0.1:3400", wantErr: false},
		{name: "port only", addr: ":8080", wantErr: false},
		{name: "localhost", addr: "localhost:3400", wantErr: false},
		{name: "auto-assign port", addr: "127.0.0.1:0", wantErr: false},
		{name: "missing port", addr: "127.0.0.1", wantErr: true},
		{name: "non-numeric port", addr: ":http", wantErr: true},
		{name: "port out of range", addr: ":70000", wantErr: true},
		{name: "whitespace host", addr: "bad host:80", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validateAddr(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
