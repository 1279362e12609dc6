// Copyright 2024 The Httpengine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cachestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyStableAndOrderIndependentOverVaryHeaders(t *testing.T) {
	a := Key("GET", "http://example.com/", map[string][]string{"Accept": {"text/html"}, "X-A": {"1"}})
	b := Key("GET", "http://example.com/", map[string][]string{"X-A": {"1"}, "Accept": {"text/html"}})
	assert.Equal(t, a, b)

	c := Key("GET", "http://example.com/", map[string][]string{"X-A": {"2"}})
	assert.NotEqual(t, a, c)
}

func TestKeyDistinguishesMethodAndURL(t *testing.T) {
	a := Key("GET", "http://example.com/a", nil)
	b := Key("GET", "http://example.com/b", nil)
	c := Key("POST", "http://example.com/a", nil)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func testStoreCommitAndGet(t *testing.T, store Store) {
	t.Helper()
	editor, err := store.Edit("k")
	require.NoError(t, err)
	require.NoError(t, editor.Commit(&Entry{RequestURL: "http://example.com", StatusCode: 200, Body: []byte("hi")}))

	got, ok, err := store.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hi", string(got.Body))
}

func TestMemoryStoreCommitAndGet(t *testing.T) {
	testStoreCommitAndGet(t, NewMemoryStore())
}

func TestMemoryStoreEditLocksKeyForConcurrentEditors(t *testing.T) {
	s := NewMemoryStore()
	editor, err := s.Edit("k")
	require.NoError(t, err)

	_, err = s.Edit("k")
	assert.ErrorIs(t, err, ErrKeyLocked)

	require.NoError(t, editor.Abort())
	_, err = s.Edit("k")
	assert.NoError(t, err)
}

func TestMemoryStoreRemove(t *testing.T) {
	s := NewMemoryStore()
	editor, err := s.Edit("k")
	require.NoError(t, err)
	require.NoError(t, editor.Commit(&Entry{StatusCode: 200}))

	require.NoError(t, s.Remove("k"))
	_, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDiskStoreCommitAndGet(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	testStoreCommitAndGet(t, store)
}

func TestDiskStoreGetMissingKeyIsNotAnError(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDiskStoreAbortReleasesLockWithoutWriting(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	editor, err := store.Edit("k")
	require.NoError(t, err)
	require.NoError(t, editor.Abort())

	_, ok, err := store.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Edit("k")
	assert.NoError(t, err, "abort must release the editor lock")
}
