// Package link orchestrates the whole pipeline spec.md §2 lays out:
// unreferenced-hunk removal, DLL rename, alignment overrides, import hunk
// splice, sort, transform, compress (with model and hash search), and
// finalize.
package link

import (
	"context"

	"moria.us/mlink/calltransform"
	"moria.us/mlink/config"
	"moria.us/mlink/hunk"
	"moria.us/mlink/image"
	"moria.us/mlink/imports"
	"moria.us/mlink/linksort"
	"moria.us/mlink/logctx"
	"moria.us/mlink/model"
	"moria.us/mlink/reuse"
	"moria.us/mlink/search"
)

// Linker holds the configuration and logger a single run is driven by.
type Linker struct {
	Options *config.Options
	Logger  *logctx.Logger
}

// New returns a Linker configured by opts, logging through logger.
func New(opts *config.Options, logger *logctx.Logger) *Linker {
	return &Linker{Options: opts, Logger: logger}
}

// initializerSection is the name suffix MSVC-style static initializer
// array sections use; hunks ending in this name hold one relocation per
// initializer function to run before the entry point.
const initializerSection = "CRT$XCU"

// buildDynamicInitializers scans hunks for the run-initializers
// section suffix and synthesizes a stub hunk that calls each one in turn
// before falling through to the real entry point: one `E8 00 00 00 00`
// (CALL rel32, to be resolved against the initializer's symbol) per
// relocation found, recovered from Crinkler's CreateDynamicInitializerHunk.
func buildDynamicInitializers(hunks []*hunk.Hunk, entrySymbol string) *hunk.Hunk {
	var targets []string
	for _, h := range hunks {
		if len(h.Name) < len(initializerSection) {
			continue
		}
		if h.Name[len(h.Name)-len(initializerSection):] != initializerSection {
			continue
		}
		for _, r := range h.Relocs {
			targets = append(targets, r.Symbol)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	data := make([]byte, 5*len(targets))
	stub := hunk.New("dynamic initializers", hunk.Code, data, 0)
	stub.Continuation = entrySymbol
	for i, target := range targets {
		off := i * 5
		data[off] = 0xe8
		stub.AddRelocation(hunk.Relocation{Offset: off + 1, Symbol: target, Type: hunk.Rel32})
	}
	return stub
}

// applyDLLRename rewrites every import hunk's ImportDLL field according to
// the configured replace/fallback DLL maps, via glob matching.
func applyDLLRename(hunks []*hunk.Hunk, opts *config.Options) {
	for _, h := range hunks {
		if h.Flags&hunk.Import == 0 {
			continue
		}
		if repl, ok := config.ReplacementFor(opts.ReplaceDLL, h.ImportDLL); ok {
			h.ImportDLL = repl
			continue
		}
		if fb, ok := config.ReplacementFor(opts.FallbackDLL, h.ImportDLL); ok {
			h.ImportDLL = fb
		}
	}
}

// applyAlignmentOverride forces every hunk not already marked Aligned to
// opts.OverrideAlignBits, unless UnalignCode asks code hunks to be left
// unaligned instead.
func applyAlignmentOverride(hunks []*hunk.Hunk, opts *config.Options) {
	if opts.OverrideAlignBits == 0 {
		return
	}
	for _, h := range hunks {
		if h.Flags&hunk.Aligned != 0 {
			continue
		}
		if opts.UnalignCode && h.Flags&hunk.Code != 0 {
			h.SetAlignBits(0)
			continue
		}
		h.SetAlignBits(uint(opts.OverrideAlignBits))
	}
}

// unresolvedSymbols returns the set of relocation targets in hunks that no
// hunk in the list defines, in first-seen order.
func unresolvedSymbols(list *hunk.List) []string {
	seen := make(map[string]bool)
	var out []string
	for _, h := range list.Hunks() {
		for _, r := range h.Relocs {
			if seen[r.Symbol] {
				continue
			}
			if list.FindSymbol(r.Symbol) != nil {
				continue
			}
			seen[r.Symbol] = true
			out = append(out, r.Symbol)
		}
	}
	return out
}

// exportTargets validates exports against the current hunk graph and
// returns the symbols a symbol-form export (name=symbol, or a bare name
// exporting the symbol of the same name) resolves to, so the caller can
// root them against RemoveUnreferenced before a later pass builds the
// export table itself. An integer export (name=value) needs no root -
// its value is exported verbatim - but its name must not collide with an
// existing symbol, which is a constraint violation.
func exportTargets(exports []config.Export, hunks *hunk.List) ([]*hunk.Symbol, error) {
	var roots []*hunk.Symbol
	for _, e := range exports {
		if e.HasValue {
			if hunks.FindSymbol(e.Name) != nil {
				return nil, newError(ConstraintViolated, "", "export %q collides with existing symbol", e.Name)
			}
			continue
		}
		target := e.ExportSymbol
		if target == "" {
			target = e.Name
		}
		sym := hunks.FindSymbol(target)
		if sym == nil {
			return nil, newError(SymbolUnresolved, "", "export %q: symbol %q not found", e.Name, target)
		}
		roots = append(roots, sym)
	}
	return roots, nil
}

// buildExportHunk synthesizes the export-table hunk: one 32-bit slot per
// entry in exports, in order. An integer export (name=value) writes its
// value directly, with no relocation - the exported RVA resolves to that
// value verbatim. A symbol-form export carries an Abs32 relocation against
// its target symbol, resolved the same way as any other relocation once
// the payload is address-assigned. exportTargets must have already
// validated exports against hunks; returns nil if there is nothing to
// export.
func buildExportHunk(exports []config.Export) *hunk.Hunk {
	if len(exports) == 0 {
		return nil
	}
	data := make([]byte, 4*len(exports))
	h := hunk.New("exports", hunk.Data, data, 0)
	for i, e := range exports {
		off := i * 4
		if e.HasValue {
			v := uint32(e.Value)
			data[off] = byte(v)
			data[off+1] = byte(v >> 8)
			data[off+2] = byte(v >> 16)
			data[off+3] = byte(v >> 24)
			continue
		}
		target := e.ExportSymbol
		if target == "" {
			target = e.Name
		}
		h.AddRelocation(hunk.Relocation{Offset: off, Symbol: target, Type: hunk.Abs32})
	}
	return h
}

// Result is everything a successful Link run produces.
type Result struct {
	Image    *hunk.Hunk
	Reuse    *reuse.Record
	Warnings []string
}

// Link runs the full pipeline over hunks, an already-materialised hunk
// graph (parsing is out of scope; see the loader package), against the
// supplied header/depacker/hash-table stub hunks and import resolver. seed
// is a previously saved reuse record to bound the search against, or nil
// to search from scratch.
func (l *Linker) Link(ctx context.Context, hunks *hunk.List, resolver imports.Resolver, header, depacker, hashTable *hunk.Hunk, seed *reuse.Record) (*Result, error) {
	opts := l.Options
	logger := l.Logger

	entry := hunks.FindSymbol(opts.EntrySymbol)
	if entry == nil {
		return nil, newError(SymbolUnresolved, "", "entry symbol %q not found", opts.EntrySymbol)
	}

	if opts.RunInitializers {
		if stub := buildDynamicInitializers(hunks.Hunks(), opts.EntrySymbol); stub != nil {
			hunks.AddFront(stub)
			entry = hunk.NewSymbol("_DynamicInitializerEntry", 0, 0, stub)
			stub.AddSymbol(entry)
		}
	}

	var roots []*hunk.Symbol
	roots = append(roots, entry)
	for _, h := range hunks.Hunks() {
		for _, s := range h.Symbols() {
			if s.Flags&hunk.Export != 0 {
				roots = append(roots, s)
			}
		}
	}
	exportRoots, err := exportTargets(opts.Exports, hunks)
	if err != nil {
		return nil, err
	}
	roots = append(roots, exportRoots...)
	if err := hunks.RemoveUnreferenced(roots...); err != nil {
		return nil, newError(InputMalformed, "", "reachability analysis failed: %v", err)
	}

	applyDLLRename(hunks.Hunks(), opts)
	applyAlignmentOverride(hunks.Hunks(), opts)

	if resolver == nil {
		resolver = imports.PassThrough{}
	}
	if pending := unresolvedSymbols(hunks); len(pending) > 0 {
		reqs := make([]imports.Request, len(pending))
		for i, sym := range pending {
			reqs[i] = imports.Request{Symbol: sym, RangeDLLs: opts.RangeDLL}
		}
		resolved, err := resolver.Resolve(reqs)
		if err != nil {
			return nil, newError(SymbolUnresolved, "", "import resolution failed: %v", err)
		}
		for _, r := range resolved {
			if r.Hunk != nil {
				hunks.AddBack(r.Hunk)
			}
		}
	}

	exportHunk := buildExportHunk(opts.Exports)
	if exportHunk != nil {
		hunks.AddBack(exportHunk)
	}

	order := linksort.Heuristic(hunks.Hunks())
	if seed != nil && len(seed.HunkOrder) > 0 {
		order = linksort.Explicit(hunks.Hunks(), seed.HunkOrder)
	}
	hunks.SetOrder(order)

	payloadList := hunk.NewList()
	for _, h := range hunks.Hunks() {
		payloadList.AddBack(h)
	}
	payload, err := payloadList.ToHunk("payload", image.CodeBase)
	if err != nil {
		return nil, newError(SymbolUnresolved, "", "relocation failed: %v", err)
	}

	exportsRVA := 0
	if exportHunk != nil {
		exportsRVA = int(exportHunk.Address) - image.ImageBase
	}

	splitPoint := codeSize(hunks.Hunks())

	callTransformApplied := false
	if opts.CallTransform {
		res := calltransform.Transform(payload.Data, splitPoint)
		if res.Count > 0 {
			callTransformApplied = true
			if depacker != nil {
				patchCallCount(depacker, res.Count)
			}
		} else {
			logger.Warning("calltransform", "no calls - call transformation not applied")
			if depacker != nil {
				disableDetransformer(depacker)
			}
		}
	}

	tier := opts.Tier
	saturate := opts.Saturate != config.Off

	const baseProb = 1

	var codeModels, dataModels *model.ModelList4k
	var model1k model.ModelList1k
	var codeSeg, dataSeg model.Segment

	if opts.TinyHeader {
		model1k, _ = search.ApproximateModels1k(payload.Data, tier, nil)
	} else {
		codeSeg = model.Segment{Data: payload.Data[:splitPoint]}
		dataSeg = model.Segment{Data: payload.Data[splitPoint:], Seed: lastBytes(payload.Data[:splitPoint])}

		var seedCode, seedData *model.ModelList4k
		if seed != nil {
			seedCode, seedData = seed.CodeModels, seed.DataModels
		}
		codeModels, _ = search.ApproximateModels4k([]model.Segment{codeSeg}, baseProb, saturate, tier, seedCode, nil)
		dataModels, _ = search.ApproximateModels4k([]model.Segment{dataSeg}, baseProb, saturate, tier, seedData, nil)
	}

	startHashSize := opts.HashSizeMiB * 1024 * 1024
	if startHashSize <= 0 {
		startHashSize = len(payload.Data)
	}
	if seed != nil && seed.HashSize > 0 {
		startHashSize = seed.HashSize
	}
	tries := opts.HashTries
	if tries < 1 {
		tries = 1
	}

	var coded []byte
	var hashSize int
	if opts.TinyHeader {
		best, err := search.OptimizeHashSize(ctx, startHashSize, tries, func(hs int) []byte {
			return model.Compress1k(payload.Data, model1k, hs, nil)
		})
		if err != nil {
			return nil, newError(IOFailure, "", "hash-size search failed: %v", err)
		}
		coded, hashSize = best.Coded, best.HashSize
	} else {
		best, err := search.OptimizeHashSize(ctx, startHashSize, tries, func(hs int) []byte {
			return model.Compress4k([]model.Segment{codeSeg, dataSeg}, []*model.ModelList4k{codeModels, dataModels}, baseProb, saturate, hs, nil)
		})
		if err != nil {
			return nil, newError(IOFailure, "", "hash-size search failed: %v", err)
		}
		coded, hashSize = best.Coded, best.HashSize
	}

	if opts.HunkTries > 0 && !opts.TinyHeader {
		evaluate := func(hs []*hunk.Hunk) int64 {
			pl := hunk.NewList()
			for _, h := range hs {
				pl.AddBack(h.Clone())
			}
			p, err := pl.ToHunk("trial", image.CodeBase)
			if err != nil {
				return 1 << 62
			}
			sp := codeSize(hs)
			cSeg := model.Segment{Data: p.Data[:sp]}
			dSeg := model.Segment{Data: p.Data[sp:], Seed: lastBytes(p.Data[:sp])}
			_, perSeg := model.EvaluateSize4k([]model.Segment{cSeg, dSeg}, []*model.ModelList4k{codeModels, dataModels}, baseProb, saturate)
			var total int64
			for _, s := range perSeg {
				total += s
			}
			return total
		}
		hunks.SetOrder(linksort.Empirical(hunks.Hunks(), evaluate, opts.HunkTries, nil))
	}

	params := &image.Params{
		Subsystem:            opts.Subsystem,
		LargeAddressAware:    opts.LargeAddressAware == config.On,
		CallTransformApplied: callTransformApplied,
		Use1kHeader:          opts.TinyHeader,
		Saturate:             saturate,
		SplitPoint:           splitPoint,
		RawSize:              len(payload.Data),
		HashSize:             hashSize,
		BaseProb:             baseProb,
		CodeModels:           codeModels,
		DataModels:           dataModels,
		Model1k:              model1k,
		ExportsRVA:           exportsRVA,
	}

	finalImage, err := image.Finalize(header, depacker, hashTable, coded, params)
	if err != nil {
		return nil, newError(SymbolUnresolved, "", "finalize failed: %v", err)
	}
	if len(finalImage.Data) > image.MaxSize {
		return nil, newError(ConstraintViolated, "", "output size %d exceeds maximum %d", len(finalImage.Data), image.MaxSize)
	}

	rec := &reuse.Record{
		CodeModels: codeModels,
		DataModels: dataModels,
		Model1k:    &model1k,
		HunkOrder:  hunkNames(hunks.Hunks()),
		HashSize:   hashSize,
	}

	return &Result{Image: finalImage, Reuse: rec, Warnings: logger.Warnings()}, nil
}

func codeSize(hunks []*hunk.Hunk) int {
	var n int
	for _, h := range hunks {
		if h.Flags&hunk.Code != 0 {
			n += h.RawSize()
		}
	}
	return n
}

func lastBytes(data []byte) [model.MaxContextLength]byte {
	var seed [model.MaxContextLength]byte
	for i := 0; i < model.MaxContextLength; i++ {
		pos := len(data) - model.MaxContextLength + i
		if pos >= 0 {
			seed[i] = data[pos]
		}
	}
	return seed
}

func hunkNames(hunks []*hunk.Hunk) []string {
	out := make([]string, len(hunks))
	for i, h := range hunks {
		out[i] = h.Name
	}
	return out
}

func patchCallCount(stub *hunk.Hunk, count int) {
	sym := stub.FindSymbol("_CallTrans")
	if sym == nil {
		return
	}
	off := int(sym.Value) + 2
	if off < 0 || off+4 > len(stub.Data) {
		return
	}
	stub.Data[off] = byte(count)
	stub.Data[off+1] = byte(count >> 8)
	stub.Data[off+2] = byte(count >> 16)
	stub.Data[off+3] = byte(count >> 24)
}

func disableDetransformer(stub *hunk.Hunk) {
	start := stub.FindSymbol("_CallTrans")
	size := stub.FindSymbol("_CallTransSize")
	if start == nil || size == nil {
		return
	}
	from := int(start.Value)
	n := int(size.Value)
	if from < 0 || from+n > len(stub.Data) {
		return
	}
	for i := from; i < from+n; i++ {
		stub.Data[i] = 0x90
	}
}

