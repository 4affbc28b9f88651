// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lifecycle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_UniquePerTrial(t *testing.T) {
	root := t.TempDir()
	m, err := NewManager(root, "abcd1234", nil)
	require.NoError(t, err)

	a, err := m.Acquire(0)
	require.NoError(t, err)
	b, err := m.Acquire(1)
	require.NoError(t, err)
	defer a.Release()
	defer b.Release()

	assert.NotEqual(t, a.Dir(), b.Dir())
	assert.NotEqual(t, a.Path("input"), b.Path("input"))
	assert.Equal(t, filepath.Join(root, "pfs_abcd1234_0"), a.Dir())

	_, err = m.Acquire(0)
	assert.Error(t, err, "re-acquiring a live trial must fail")
}

func TestAcquire_RunsDoNotCollide(t *testing.T) {
	root := t.TempDir()
	m1, err := NewManager(root, NewRunID(), nil)
	require.NoError(t, err)
	m2, err := NewManager(root, NewRunID(), nil)
	require.NoError(t, err)

	s1, err := m1.Acquire(3)
	require.NoError(t, err)
	s2, err := m2.Acquire(3)
	require.NoError(t, err)

	assert.NotEqual(t, s1.Dir(), s2.Dir())
	s1.Release()
	s2.Release()
}

func TestRelease_RemovesEverything(t *testing.T) {
	m, err := NewManager(t.TempDir(), "run", nil)
	require.NoError(t, err)
	s, err := m.Acquire(7)
	require.NoError(t, err)

	input := s.Path("input")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0640))
	// Registered but never created, as when the solver fails before writing.
	_ = s.Path("real_finite_solutions")
	// Left behind by the solver without registration.
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "main_data"), []byte("y"), 0640))

	assert.Equal(t, 0, s.Release())

	_, err = os.Stat(input)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, 0, s.Release(), "second release is a no-op")
}

func TestPath_StaysInsideScope(t *testing.T) {
	m, err := NewManager(t.TempDir(), "run", nil)
	require.NoError(t, err)
	s, err := m.Acquire(0)
	require.NoError(t, err)
	defer s.Release()

	p := s.Path("../../escape")
	assert.Equal(t, s.Dir(), filepath.Dir(p))
	assert.Equal(t, "escape", filepath.Base(p))
}

func TestNewManager_RequiresRunID(t *testing.T) {
	_, err := NewManager(t.TempDir(), "", nil)
	assert.Error(t, err)
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}
