// Package config holds the full set of recognised linker options and the
// environment-variable fallbacks used to set defaults for the ones most
// commonly tuned from outside a build script. Parsing an actual
// command line is out of scope here; a CLI front end populates Options
// directly or leaves fields at their NewOptions defaults.
package config

import (
	"github.com/bmatcuk/doublestar/v4"
	env "github.com/xyproto/env/v2"

	"moria.us/mlink/image"
	"moria.us/mlink/model"
)

// Tristate models an option that can be forced on, forced off, or left to
// inherit a computed default (e.g. from the subsystem).
type Tristate int

const (
	Inherit Tristate = iota
	Off
	On
)

// Options is the full set of recognised configuration options from
// spec.md §6. Fields not set by a front end keep the zero value, which
// NewOptions below replaces with documented defaults.
type Options struct {
	Subsystem         image.Subsystem
	LargeAddressAware Tristate
	EntrySymbol       string
	Tier              model.CompressionTier
	TinyHeader        bool
	TinyImport        bool
	Saturate          Tristate
	HashSizeMiB       int
	HashTries         int
	HunkTries         int

	// RangeDLL, ReplaceDLL and FallbackDLL hold glob patterns (matched
	// with doublestar against a DLL's base name) that select which
	// import DLLs a name applies to.
	RangeDLL    []string
	ReplaceDLL  map[string]string
	FallbackDLL map[string]string

	UnsafeImport      bool
	CallTransform     bool
	TruncateFloatBits int
	OverrideAlignBits int
	UnalignCode       bool
	RunInitializers   bool

	// Exports lists the /EXPORT entries. An entry with HasValue set exports
	// Value verbatim (name=value); otherwise it exports the symbol named by
	// ExportSymbol (name=symbol), or the symbol named Name when
	// ExportSymbol is empty (a bare name).
	Exports []Export
}

// Export is one /EXPORT option.
type Export struct {
	Name         string
	ExportSymbol string
	HasValue     bool
	Value        int32
}

// NewOptions returns Options with every field at its documented default,
// with the few that commonly vary by environment read through
// github.com/xyproto/env/v2 so a CI matrix can tune them without
// recompiling a CLI wrapper.
func NewOptions() *Options {
	return &Options{
		Subsystem:         image.Console,
		LargeAddressAware: Inherit,
		EntrySymbol:       "_main",
		Tier:              tierFromEnv("MLINK_TIER", model.Instant),
		Saturate:          Inherit,
		HashSizeMiB:       env.Int("MLINK_HASHSIZE_MIB", 1),
		HashTries:         env.Int("MLINK_HASH_TRIES", 9),
		HunkTries:         env.Int("MLINK_HUNK_TRIES", 100),
		ReplaceDLL:        map[string]string{},
		FallbackDLL:       map[string]string{},
		CallTransform:     boolEnvDefault("MLINK_CALLTRANS", true),
		OverrideAlignBits: 0,
	}
}

// boolEnvDefault returns the boolean value of the given environment
// variable, or def if the variable is not set.
func boolEnvDefault(envName string, def bool) bool {
	if !env.Has(envName) {
		return def
	}
	return env.Bool(envName)
}

func tierFromEnv(key string, def model.CompressionTier) model.CompressionTier {
	switch env.Str(key, "") {
	case "instant":
		return model.Instant
	case "fast":
		return model.Fast
	case "slow":
		return model.Slow
	case "very-slow":
		return model.VerySlow
	default:
		return def
	}
}

// MatchesDLL reports whether name (a DLL base name, e.g. "kernel32.dll")
// matches any of the glob patterns in patterns.
func MatchesDLL(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// ReplacementFor returns the DLL name patterns maps name to, via
// doublestar glob matching against the map's keys, and whether a
// replacement was found.
func ReplacementFor(replacements map[string]string, name string) (string, bool) {
	for pattern, replacement := range replacements {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return replacement, true
		}
	}
	return "", false
}
