// Package loader defines the interface boundary between the core and COFF
// object/library parsing, which spec.md §1 places out of scope: the core
// consumes an already-materialised hunk graph and never reads object file
// bytes itself.
package loader

import "moria.us/mlink/hunk"

// HunkSource produces a hunk list from whatever input a concrete loader
// understands (object files, static libraries, a recompressed PE image).
// A real COFF/LIB parser implementing this lives outside this module.
type HunkSource interface {
	Load() (*hunk.List, error)
}
