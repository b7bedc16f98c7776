package ir

// AnalysisKind names one of the fixed set of analyses that can be cached on
// a Function. This is the "typed slot per analysis kind" strategy from
// DESIGN.md's analysis-cache note: each kind owns one slot, invalidation
// clears all slots at once, and computation lazily fills a slot. The
// concrete result type for each kind lives in internal/analyses, which is
// the only package expected to populate these slots; ir itself never
// inspects slot contents.
type AnalysisKind int

const (
	AnalysisCFG AnalysisKind = iota
	AnalysisLiveOut
	AnalysisLiveNow
	AnalysisDominance
	AnalysisDomTree
	AnalysisDomFrontier
	AnalysisBlockFreq
	AnalysisEBB
	AnalysisInterference
	AnalysisSpillCost
	numAnalysisKinds
)

type analysisCache struct {
	slots [numAnalysisKinds]any
}

// CacheGet returns the cached value for kind and whether it was present.
func (f *Function) CacheGet(kind AnalysisKind) (any, bool) {
	v := f.cache.slots[kind]
	return v, v != nil
}

// CacheSet fills the slot for kind with v.
func (f *Function) CacheSet(kind AnalysisKind, v any) {
	f.cache.slots[kind] = v
}
