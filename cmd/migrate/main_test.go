package main

import (
	"bytes"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	upErr   error
	steps   []int
	target  uint
	forced  int
	version uint
	dirty   bool
	verErr  error
}

func (f *fakeMigrator) Up() error                  { return f.upErr }
func (f *fakeMigrator) Steps(n int) error          { f.steps = append(f.steps, n); return nil }
func (f *fakeMigrator) Migrate(version uint) error { f.target = version; return nil }
func (f *fakeMigrator) Force(version int) error    { f.forced = version; return nil }
func (f *fakeMigrator) Version() (uint, bool, error) {
	return f.version, f.dirty, f.verErr
}

func TestRun(t *testing.T) {
	tests := []struct {
		name    string
		m       *fakeMigrator
		args    []string
		want    string
		wantErr error
		check   func(t *testing.T, m *fakeMigrator)
	}{
		{name: "up", m: &fakeMigrator{}, args: []string{"up"}, want: "erfolgreich"},
		{name: "up without changes", m: &fakeMigrator{upErr: migrate.ErrNoChange}, args: []string{"up"}, want: "Keine Änderungen"},
		{
			name: "down rolls back one step", m: &fakeMigrator{}, args: []string{"down"}, want: "zurückgerollt",
			check: func(t *testing.T, m *fakeMigrator) { assert.Equal(t, []int{-1}, m.steps) },
		},
		{
			name: "goto", m: &fakeMigrator{}, args: []string{"goto", "2"}, want: "Version 2",
			check: func(t *testing.T, m *fakeMigrator) { assert.Equal(t, uint(2), m.target) },
		},
		{
			name: "force", m: &fakeMigrator{}, args: []string{"force", "3"}, want: "Version 3 gesetzt",
			check: func(t *testing.T, m *fakeMigrator) { assert.Equal(t, 3, m.forced) },
		},
		{name: "version dirty", m: &fakeMigrator{version: 3, dirty: true}, args: []string{"version"}, want: "3 (dirty)"},
		{name: "status before first migration", m: &fakeMigrator{verErr: migrate.ErrNilVersion}, args: []string{"status"}, want: "Keine Migrationen"},
		{name: "force without version", m: &fakeMigrator{}, args: []string{"force"}, wantErr: errUsage},
		{name: "goto with bad version", m: &fakeMigrator{}, args: []string{"goto", "x"}, wantErr: errUsage},
		{name: "unknown command", m: &fakeMigrator{}, args: []string{"sideways"}, wantErr: errUsage},
		{name: "no command", m: &fakeMigrator{}, args: nil, wantErr: errUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(tt.m, tt.args, &out)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out.String(), tt.want)
			if tt.check != nil {
				tt.check(t, tt.m)
			}
		})
	}
}
