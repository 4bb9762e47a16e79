// Package native provides a pure Go implementation of the engine boundary.
//
// It is used when no compiled engine binary is configured, and mirrors the
// compiled engine's contract: queries return their result set serialised
// as a JSON array.
package native

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/hwellmann/folkfriend"
	"github.com/hwellmann/folkfriend/engine"
)

const (
	// KTuple is the n-gram length used for contour queries.
	KTuple = 3
	// MaxResults caps the number of matches returned by a query.
	MaxResults = 100
)

// Index is the JSON index payload accepted by LoadIndex.
type Index struct {
	Settings map[string]Setting  `json:"settings"`
	Aliases  map[string][]string `json:"aliases"`
}

// Setting is a single transcribed setting of a tune.
type Setting struct {
	TuneID  string `json:"tune_id"`
	Contour string `json:"contour"`
}

// Engine is the native engine. It is not safe for concurrent use.
type Engine struct {
	index *Index
}

// New returns an engine with no index.
func New() *Engine {
	return &Engine{}
}

// Loader returns an engine.Loader producing native engines. A positive delay
// simulates the bring-up time of the compiled engine.
func Loader(delay time.Duration) engine.Loader {
	return engine.LoaderFunc(func(ctx context.Context) (engine.Engine, error) {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return New(), nil
	})
}

func (e *Engine) Version(ctx context.Context) (string, error) {
	return "native-" + folkfriend.Version, nil
}

// LoadIndex validates and installs index. A rejected payload leaves any
// previously accepted index in place.
func (e *Engine) LoadIndex(ctx context.Context, index []byte) error {
	var idx Index
	if err := json.Unmarshal(index, &idx); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrIndexRejected, err)
	}
	if len(idx.Settings) == 0 {
		return fmt.Errorf("%w: no settings", engine.ErrIndexRejected)
	}
	for id, s := range idx.Settings {
		if s.Contour == "" {
			return fmt.Errorf("%w: setting %s has an empty contour", engine.ErrIndexRejected, id)
		}
	}
	if idx.Aliases == nil {
		idx.Aliases = make(map[string][]string)
	}

	e.index = &idx
	return nil
}

// TranscriptionQuery scores every setting by the fraction of the query's
// k-tuples found in the setting's contour.
func (e *Engine) TranscriptionQuery(ctx context.Context, query string) (string, error) {
	if e.index == nil {
		return "", engine.ErrNoIndex
	}

	ngrams := kTuples(query, KTuple)
	results := make(engine.ResultSet, 0, len(e.index.Settings))
	for id, setting := range e.index.Settings {
		hits := 0
		for _, ngram := range ngrams {
			if strings.Contains(setting.Contour, ngram) {
				hits++
			}
		}
		score := float64(hits) / float64(max(len(setting.Contour), len(query), 1))
		results = append(results, engine.Match{
			SettingID:   id,
			TuneID:      setting.TuneID,
			DisplayName: e.displayName(setting.TuneID),
			Score:       score,
		})
	}

	return encode(rank(results))
}

// NameQuery matches the query against tune aliases, keeping the best
// alias per tune.
func (e *Engine) NameQuery(ctx context.Context, query string) (string, error) {
	if e.index == nil {
		return "", engine.ErrNoIndex
	}

	q := normalize(query)
	results := make(engine.ResultSet, 0)
	if q == "" {
		return encode(results)
	}

	for tuneID, aliases := range e.index.Aliases {
		best, bestName := 0.0, ""
		for _, alias := range aliases {
			if score := nameScore(q, normalize(alias)); score > best {
				best, bestName = score, alias
			}
		}
		if best > 0 {
			results = append(results, engine.Match{
				TuneID:      tuneID,
				DisplayName: bestName,
				Score:       best,
			})
		}
	}

	return encode(rank(results))
}

func (e *Engine) ContourToABC(ctx context.Context, contour string) (string, error) {
	return ContourToABC(contour)
}

func (e *Engine) Close(ctx context.Context) error {
	e.index = nil
	return nil
}

func (e *Engine) displayName(tuneID string) string {
	if names := e.index.Aliases[tuneID]; len(names) > 0 {
		return names[0]
	}
	return ""
}

func kTuples(s string, k int) []string {
	if len(s) < k {
		return nil
	}
	out := make([]string, 0, len(s)-k+1)
	for i := 0; i+k <= len(s); i++ {
		out = append(out, s[i:i+k])
	}
	return out
}

// rank sorts by descending score, breaking ties by id for stable output,
// and truncates to MaxResults.
func rank(results engine.ResultSet) engine.ResultSet {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].TuneID != results[j].TuneID {
			return results[i].TuneID < results[j].TuneID
		}
		return results[i].SettingID < results[j].SettingID
	})
	if len(results) > MaxResults {
		results = results[:MaxResults]
	}
	return results
}

func encode(results engine.ResultSet) (string, error) {
	data, err := json.Marshal(results)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case unicode.IsSpace(r) || r == '-' || r == '_':
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// nameScore compares two normalised names: 1 for equality, 0.9 when the
// query is contained in the alias, otherwise the fraction of query tokens
// present in the alias.
func nameScore(query, alias string) float64 {
	if alias == "" {
		return 0
	}
	if query == alias {
		return 1
	}
	if strings.Contains(alias, query) {
		return 0.9
	}

	aliasTokens := make(map[string]bool)
	for _, tok := range strings.Fields(alias) {
		aliasTokens[tok] = true
	}
	queryTokens := strings.Fields(query)
	hits := 0
	for _, tok := range queryTokens {
		if aliasTokens[tok] {
			hits++
		}
	}
	return 0.8 * float64(hits) / float64(len(queryTokens))
}
