// Package imports defines the interface boundary between the core and
// import discovery, which spec.md §1 places out of scope: computing which
// DLL exports a hunk graph's unresolved symbols resolve against, and
// synthesizing the thunk hunks that satisfy them, is a sibling algorithm
// the core only ever consumes the result of.
package imports

import "moria.us/mlink/hunk"

// Request describes one unresolved symbol the core needs an import thunk
// for.
type Request struct {
	Symbol    string
	Ordinal   bool
	RangeDLLs []string
}

// Resolved is the result of resolving one Request: an import hunk (with
// the Import flag set, ImportDLL/ImportSym populated) ready to splice into
// the hunk list.
type Resolved struct {
	Request Request
	Hunk    *hunk.Hunk
}

// Resolver discovers which DLL (if any) satisfies each requested import
// and produces the thunk hunks the core links against. A real
// implementation parses DLL export tables and is out of scope for this
// module; it lives in an external loader package.
type Resolver interface {
	Resolve(requests []Request) ([]Resolved, error)
}

// PassThrough is a trivial Resolver that resolves nothing: every request
// comes back unresolved. It exists so the core can be exercised (and
// tested) without a real DLL-export-table reader wired in.
type PassThrough struct{}

// Resolve implements Resolver by resolving no requests.
func (PassThrough) Resolve(requests []Request) ([]Resolved, error) {
	return nil, nil
}
