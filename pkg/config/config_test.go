// Frontline Perception System
// Copyright (C) 2020-2025 TurbineOne LLC
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	Depth int    `yaml:"depth" env:"DEPTH"`
	Title string `yaml:"title" env:"TITLE"`
}

func TestInitFileOverridesEnv(t *testing.T) {
	t.Setenv("PIPTEST_LEVEL", "debug")
	t.Setenv("PIPTEST_DEPTH", "7")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("depth: 3\n"), 0o600))

	c := testConfig{Title: "default"}
	require.NoError(t, Init(path, "PIPTEST_", &c))

	assert.Equal(t, "debug", c.Level)
	assert.Equal(t, 3, c.Depth)
	assert.Equal(t, "default", c.Title)
}

func TestInitMissingFile(t *testing.T) {
	c := testConfig{Depth: 1}

	err := Init(filepath.Join(t.TempDir(), "nope.yaml"), "PIPTEST_", &c)

	var ncErr *NoConfigError
	require.ErrorAs(t, err, &ncErr)
	assert.Equal(t, 1, c.Depth)
}

func TestInitBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("depth: [\n"), 0o600))

	err := Init(path, "", &testConfig{})
	require.Error(t, err)

	var ncErr *NoConfigError
	assert.NotErrorAs(t, err, &ncErr)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("depth: 1\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())

	var changes atomic.Int32

	done := make(chan error, 1)

	go func() {
		done <- Watch(ctx, path, func() { changes.Add(1) })
	}()

	// Give the watcher time to register.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("depth: 2\n"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("depth: 3\n"), 0o600))

	require.Eventually(t, func() bool { return changes.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), changes.Load())
}
