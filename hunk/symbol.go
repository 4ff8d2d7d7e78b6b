package hunk

// A SymFlag is a set of flags describing the nature of a symbol's value.
type SymFlag uint32

const (
	// Relocatable marks a symbol's value as relative to its owning hunk's
	// assigned address, rather than an absolute constant.
	Relocatable SymFlag = 1 << iota
	// SectionStart marks a symbol as the first address of a hunk (used by
	// the compression report to label section boundaries).
	SectionStart
	// Export marks a symbol as visible in the output's export table.
	Export
)

// A Symbol is a named value: either an offset within an owning hunk, or an
// absolute constant (including integer exports).
//
// Invariant: a symbol either has a non-nil Hunk (its Value is relative to
// that hunk's assigned address) or it is absolute and Hunk is nil. The Hunk
// reference is non-owning: the hunk outlives the symbol.
type Symbol struct {
	Name  string
	Value int32
	Flags SymFlag
	Hunk  *Hunk

	// Misc is an optional auxiliary string, e.g. an imported-function hint.
	Misc string

	// FromLibrary distinguishes symbols pulled in from a static library
	// from symbols defined directly by an object on the command line.
	FromLibrary bool
}

// NewSymbol creates a symbol owned by hunk h (or absolute, if h is nil).
func NewSymbol(name string, value int32, flags SymFlag, h *Hunk) *Symbol {
	return &Symbol{Name: name, Value: value, Flags: flags, Hunk: h}
}

// Absolute reports whether the symbol's value is an absolute constant
// rather than being relative to an owning hunk.
func (s *Symbol) Absolute() bool { return s.Hunk == nil }

// Address returns the symbol's resolved address, given that its owning
// hunk (if any) has already been assigned an address. Absolute symbols
// return their Value unchanged.
func (s *Symbol) Address() int32 {
	if s.Hunk == nil {
		return s.Value
	}
	return s.Hunk.Address + s.Value
}
