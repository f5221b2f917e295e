/*
Copyright (C) 2023  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package schema

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryDefineAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.store")
	r, err := OpenRegistry(path)
	require.NoError(t, err)
	defer r.Close()

	s, err := r.Define("user_created", map[string]FieldType{
		"email":          {Kind: KindString},
		"purchase_total": {Kind: KindF64},
		"success":        {Kind: KindOptional, Inner: &FieldType{Kind: KindBool}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, s.UID)

	require.NoError(t, s.Validate(map[string]any{"email": "a", "purchase_total": 1.0}))
	require.Error(t, s.Validate(map[string]any{"email": "a", "purchase_total": 1.0, "extra": 1}))
	require.Error(t, s.Validate(map[string]any{"purchase_total": 1.0}))
}

func TestRegistryDuplicateDefinitionIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.store")
	r, err := OpenRegistry(path)
	require.NoError(t, err)
	defer r.Close()

	fields := map[string]FieldType{"plan": {Kind: KindEnum, Variants: []string{"free", "pro", "team"}}}
	s1, err := r.Define("plan_changed", fields)
	require.NoError(t, err)
	s2, err := r.Define("plan_changed", fields)
	require.NoError(t, err)
	require.Equal(t, s1.UID, s2.UID)

	_, err = r.Define("plan_changed", map[string]FieldType{"plan": {Kind: KindString}})
	require.Error(t, err)
}

func TestRegistryReloadsFromStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.store")
	r1, err := OpenRegistry(path)
	require.NoError(t, err)
	_, err = r1.Define("evt", map[string]FieldType{"id": {Kind: KindU64}})
	require.NoError(t, err)
	require.NoError(t, r1.Close())

	r2, err := OpenRegistry(path)
	require.NoError(t, err)
	defer r2.Close()
	s, ok := r2.Lookup("evt")
	require.True(t, ok)
	require.Contains(t, s.Fields, "id")
}
