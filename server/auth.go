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
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Auth verifies X-Auth-User/X-Auth-Signature against a per-user shared
// secret: the signature is an HMAC-SHA256 of the trimmed command body,
// hex-encoded. Plain stdlib crypto/hmac is a 1:1 match for this scheme;
// nothing in the pack's HTTP-facing code reaches for a library for it.
type Auth struct {
	Secrets map[string][]byte
}

// Verify reports whether sig is the correct hex-encoded HMAC-SHA256 of
// body's trimmed bytes, keyed by user's shared secret. An unknown user
// always fails.
func (a Auth) Verify(user string, body []byte, sig string) bool {
	secret, ok := a.Secrets[user]
	if !ok {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(bytes.TrimSpace(body))
	return hmac.Equal(mac.Sum(nil), want)
}
