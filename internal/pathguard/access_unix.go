// Copyright (c) Elliot Nunn
// Licensed under the MIT license

//go:build unix

package pathguard

import "golang.org/x/sys/unix"

// quickWritableHint reports false only when the OS can definitively say
// dir is not writable, letting EnsureWritableDir fail fast with a clearer
// error before it even attempts the create/remove probe the spec requires.
func quickWritableHint(dir string) bool {
	return unix.Access(dir, unix.W_OK) == nil
}
