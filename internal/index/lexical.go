package index

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Tokenizer lowercases and splits text into terms. Multi-word terms
// from the domain lexicon are folded into single tokens first, so
// "signal integrity" matches as one unit instead of two common words.
type Tokenizer struct {
	replacer *strings.Replacer
}

// NewTokenizer builds a tokenizer over the given lexicon. Longer terms
// are folded before shorter ones so nested phrases resolve to the
// longest match.
func NewTokenizer(lexicon []string) *Tokenizer {
	terms := make([]string, len(lexicon))
	for i, t := range lexicon {
		terms[i] = strings.ToLower(strings.TrimSpace(t))
	}
	sort.Slice(terms, func(i, j int) bool { return len(terms[i]) > len(terms[j]) })

	var pairs []string
	for _, t := range terms {
		if t == "" || !strings.ContainsAny(t, " -") {
			continue
		}
		folded := strings.Map(func(r rune) rune {
			if r == ' ' || r == '-' {
				return '_'
			}
			return r
		}, t)
		pairs = append(pairs, t, folded)
	}
	return &Tokenizer{replacer: strings.NewReplacer(pairs...)}
}

// Tokenize returns the lowercased terms of the text.
func (t *Tokenizer) Tokenize(text string) []string {
	lower := strings.ToLower(text)
	lower = t.replacer.Replace(lower)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// Lexical is an in-memory Okapi BM25 index over child passages. It is
// rebuilt from the child store at startup and updated in place by the
// dual writer.
type Lexical struct {
	mu       sync.RWMutex
	tok      *Tokenizer
	docs     map[string]*lexicalDoc
	df       map[string]int
	totalLen int
}

type lexicalDoc struct {
	documentID string
	chunkID    int
	tf         map[string]int
	length     int
}

// NewLexical creates an empty lexical index using the given tokenizer.
func NewLexical(tok *Tokenizer) *Lexical {
	return &Lexical{
		tok:  tok,
		docs: make(map[string]*lexicalDoc),
		df:   make(map[string]int),
	}
}

// Add indexes one passage, replacing any previous entry for the same
// document and chunk.
func (l *Lexical) Add(documentID string, chunkID int, text string) {
	terms := l.tok.Tokenize(text)

	l.mu.Lock()
	defer l.mu.Unlock()

	key := Hit{DocumentID: documentID, ChunkID: chunkID}.Key()
	if old, ok := l.docs[key]; ok {
		l.removeLocked(key, old)
	}

	doc := &lexicalDoc{
		documentID: documentID,
		chunkID:    chunkID,
		tf:         make(map[string]int),
		length:     len(terms),
	}
	for _, term := range terms {
		doc.tf[term]++
	}
	for term := range doc.tf {
		l.df[term]++
	}
	l.docs[key] = doc
	l.totalLen += doc.length
}

// Search scores the query against the corpus and returns the top-k
// passages with a positive score, ties broken by passage key.
func (l *Lexical) Search(query string, k int) []Hit {
	terms := l.tok.Tokenize(query)

	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.docs)
	if n == 0 || len(terms) == 0 {
		return nil
	}
	avgLen := float64(l.totalLen) / float64(n)

	var hits []Hit
	for _, doc := range l.docs {
		var score float64
		for _, term := range terms {
			tf := doc.tf[term]
			if tf == 0 {
				continue
			}
			df := l.df[term]
			idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
			denom := float64(tf) + bm25K1*(1-bm25B+bm25B*float64(doc.length)/avgLen)
			score += idf * float64(tf) * (bm25K1 + 1) / denom
		}
		if score > 0 {
			hits = append(hits, Hit{DocumentID: doc.documentID, ChunkID: doc.chunkID, Score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Key() < hits[j].Key()
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

// DeleteByDocument removes all passages of a document.
func (l *Lexical) DeleteByDocument(documentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, doc := range l.docs {
		if doc.documentID == documentID {
			l.removeLocked(key, doc)
		}
	}
}

// Reset drops the whole index.
func (l *Lexical) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs = make(map[string]*lexicalDoc)
	l.df = make(map[string]int)
	l.totalLen = 0
}

// Count returns the number of indexed passages.
func (l *Lexical) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.docs)
}

func (l *Lexical) removeLocked(key string, doc *lexicalDoc) {
	for term := range doc.tf {
		if l.df[term] <= 1 {
			delete(l.df, term)
		} else {
			l.df[term]--
		}
	}
	l.totalLen -= doc.length
	delete(l.docs, key)
}
