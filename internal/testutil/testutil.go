// Package testutil provides fixtures and assertions shared by snapvault tests.
//
//   - assert.go: assertion helpers (MustNoErr, AssertStrings, ...)
//   - zip.go: in-memory and on-disk ZIP fixtures, including nested archives
//   - csv.go: conversations.csv fixture builder
package testutil
