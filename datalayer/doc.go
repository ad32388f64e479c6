// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package datalayer provides data-layer capability implementations.
// Raw is the pass-through byte layer over socket descriptors; encrypted
// or protocol-translating layers implement the same capability set.
package datalayer
