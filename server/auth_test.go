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
package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestAuthVerifyAcceptsCorrectSignature(t *testing.T) {
	a := Auth{Secrets: map[string][]byte{"alice": []byte("topsecret")}}
	body := []byte(`{"kind":"FLUSH"}`)
	require.True(t, a.Verify("alice", body, sign([]byte("topsecret"), body)))
}

func TestAuthVerifyRejectsWrongSecret(t *testing.T) {
	a := Auth{Secrets: map[string][]byte{"alice": []byte("topsecret")}}
	body := []byte(`{"kind":"FLUSH"}`)
	require.False(t, a.Verify("alice", body, sign([]byte("wrong"), body)))
}

func TestAuthVerifyRejectsUnknownUser(t *testing.T) {
	a := Auth{Secrets: map[string][]byte{"alice": []byte("topsecret")}}
	body := []byte(`{"kind":"FLUSH"}`)
	require.False(t, a.Verify("bob", body, sign([]byte("topsecret"), body)))
}

func TestAuthVerifyToleratesSurroundingWhitespace(t *testing.T) {
	a := Auth{Secrets: map[string][]byte{"alice": []byte("topsecret")}}
	trimmed := []byte(`{"kind":"FLUSH"}`)
	require.True(t, a.Verify("alice", append([]byte("  "), append(trimmed, '\n')...), sign([]byte("topsecret"), trimmed)))
}
