package tools

import (
	"math"
	"sort"
	"strings"
)

// bm25 tuning constants, standard defaults from Okapi BM25.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// bm25Index is a standard-library-only BM25 ranker over each tool's
// name ⊕ description ⊕ param_names. No pack dependency offers lexical
// ranking (see DESIGN.md); this is a small enough algorithm that a
// hand-rolled implementation is the correct call rather than a gap.
type bm25Index struct {
	docs       map[string][]string // name -> tokenized document
	docLen     map[string]int
	totalLen   int
	termDocs   map[string]map[string]int // term -> name -> term frequency
	kindByName map[string]Kind
}

func newBM25Index() *bm25Index {
	return &bm25Index{
		docs:       make(map[string][]string),
		docLen:     make(map[string]int),
		termDocs:   make(map[string]map[string]int),
		kindByName: make(map[string]Kind),
	}
}

func (idx *bm25Index) add(d Descriptor) {
	tokens := tokenizeDescriptor(d)
	idx.totalLen -= idx.docLen[d.Name]
	idx.removeTerms(d.Name)

	idx.docs[d.Name] = tokens
	idx.docLen[d.Name] = len(tokens)
	idx.totalLen += len(tokens)
	idx.kindByName[d.Name] = d.Kind

	freq := make(map[string]int)
	for _, tok := range tokens {
		freq[tok]++
	}
	for term, tf := range freq {
		if idx.termDocs[term] == nil {
			idx.termDocs[term] = make(map[string]int)
		}
		idx.termDocs[term][d.Name] = tf
	}
}

func (idx *bm25Index) remove(name string) {
	idx.totalLen -= idx.docLen[name]
	idx.removeTerms(name)
	delete(idx.docs, name)
	delete(idx.docLen, name)
	delete(idx.kindByName, name)
}

func (idx *bm25Index) removeTerms(name string) {
	for term, docs := range idx.termDocs {
		delete(docs, name)
		if len(docs) == 0 {
			delete(idx.termDocs, term)
		}
	}
}

func (idx *bm25Index) avgDocLen() float64 {
	if len(idx.docs) == 0 {
		return 0
	}
	return float64(idx.totalLen) / float64(len(idx.docs))
}

type scoredTool struct {
	name  string
	kind  Kind
	score float64
}

// search returns up to k tool names ranked by BM25 score, ties broken by
// (higher kind priority, then lexicographic name), per spec.md §4.3.
func (idx *bm25Index) search(query string, k int) []string {
	terms := tokenize(query)
	n := float64(len(idx.docs))
	avgLen := idx.avgDocLen()

	scores := make(map[string]float64)
	for _, term := range terms {
		docs, ok := idx.termDocs[term]
		if !ok {
			continue
		}
		df := float64(len(docs))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for name, tf := range docs {
			dl := float64(idx.docLen[name])
			num := float64(tf) * (bm25K1 + 1)
			den := float64(tf) + bm25K1*(1-bm25B+bm25B*dl/maxF(avgLen, 1))
			scores[name] += idf * (num / den)
		}
	}

	ranked := make([]scoredTool, 0, len(scores))
	for name, score := range scores {
		ranked = append(ranked, scoredTool{name: name, kind: idx.kindByName[name], score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		pi, pj := kindPriority(ranked[i].kind), kindPriority(ranked[j].kind)
		if pi != pj {
			return pi > pj
		}
		return ranked[i].name < ranked[j].name
	})

	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	names := make([]string, len(ranked))
	for i, r := range ranked {
		names[i] = r.name
	}
	return names
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func tokenizeDescriptor(d Descriptor) []string {
	var sb strings.Builder
	sb.WriteString(d.Name)
	sb.WriteByte(' ')
	sb.WriteString(d.Description)
	for _, p := range d.Parameters {
		sb.WriteByte(' ')
		sb.WriteString(p.Name)
	}
	return tokenize(sb.String())
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	return fields
}
