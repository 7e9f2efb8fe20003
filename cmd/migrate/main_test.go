package main

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appmigrations "github.com/wolfman30/agent-console/migrations"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		args    []string
		cmd     string
		arg     int
		wantErr bool
	}{
		{args: nil, cmd: "up"},
		{args: []string{"up"}, cmd: "up"},
		{args: []string{"version"}, cmd: "version"},
		{args: []string{"force", "2"}, cmd: "force", arg: 2},
		{args: []string{"down", "1"}, cmd: "down", arg: 1},
		{args: []string{"down", "0"}, wantErr: true},
		{args: []string{"force"}, wantErr: true},
		{args: []string{"force", "two"}, wantErr: true},
		{args: []string{"sideways"}, wantErr: true},
	}
	for _, tt := range tests {
		cmd, arg, err := parseArgs(tt.args)
		if tt.wantErr {
			assert.Error(t, err, tt.args)
			continue
		}
		require.NoError(t, err, tt.args)
		assert.Equal(t, tt.cmd, cmd)
		assert.Equal(t, tt.arg, arg)
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(appmigrations.FS, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(appmigrations.FS, "*.down.sql")
	require.NoError(t, err)
	assert.Len(t, ups, 3)
	assert.Len(t, downs, len(ups))
}
