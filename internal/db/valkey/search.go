package valkey

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/mastrvec/internal/db"
	"github.com/kailas-cloud/mastrvec/internal/domain/search/filter"
)

// SearchKNN runs a KNN query via FT.SEARCH. Entries come back ordered by ascending distance.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	field := q.VectorField
	if field == "" {
		field = "vector"
	}
	scoreField := db.ScoreField(field)

	knn := fmt.Sprintf("[KNN %d @%s $BLOB]", q.K, field)
	query := "*=>" + knn
	if f := buildFilter(q.Filters); f != "" {
		query = fmt.Sprintf("(%s)=>%s", f, knn)
	}

	args := []string{q.IndexName, query}
	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)+1))
		args = append(args, q.ReturnFields...)
		args = append(args, scoreField)
	}
	args = append(args,
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", vectorToBytes(q.Vector),
		"DIALECT", "2",
	)

	raw, err := s.do(ctx, s.b().Arbitrary("FT.SEARCH").Args(args...).Build()).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	return parseKNNResult(raw, scoreField)
}

// parseKNNResult reads the RESP2 layout [total, key1, fields1, key2, fields2, ...].
func parseKNNResult(raw []rueidis.RedisMessage, scoreField string) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	entries := make([]db.SearchEntry, 0, (len(raw)-1)/2)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		pairs, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{Key: key, Fields: parseFieldPairs(pairs)}
		if v, ok := entry.Fields[scoreField]; ok {
			if d, err := strconv.ParseFloat(v, 64); err == nil {
				entry.Score = d
			}
			delete(entry.Fields, scoreField)
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score < entries[j].Score })
	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// buildFilter translates a filter.Expression into an FT.SEARCH pre-filter.
func buildFilter(expr filter.Expression) string {
	if expr.IsEmpty() {
		return ""
	}

	var parts []string
	for _, cond := range expr.Must() {
		parts = append(parts, buildCondition(cond))
	}
	if len(expr.Should()) > 0 {
		alts := make([]string, 0, len(expr.Should()))
		for _, cond := range expr.Should() {
			alts = append(alts, buildCondition(cond))
		}
		parts = append(parts, "("+strings.Join(alts, " | ")+")")
	}
	for _, cond := range expr.MustNot() {
		parts = append(parts, "-"+buildCondition(cond))
	}
	return strings.Join(parts, " ")
}

func buildCondition(cond filter.Condition) string {
	switch {
	case cond.IsMatch():
		return fmt.Sprintf("@%s:{%s}", cond.Key(), tagEscaper.Replace(cond.Match()))
	case cond.IsRange():
		return buildNumericFilter(cond.Key(), *cond.Range())
	default:
		return ""
	}
}

func buildNumericFilter(key string, r filter.Range) string {
	lo, hi := "-inf", "+inf"
	if r.GT() != nil {
		lo = fmt.Sprintf("(%g", *r.GT())
	} else if r.GTE() != nil {
		lo = fmt.Sprintf("%g", *r.GTE())
	}
	if r.LT() != nil {
		hi = fmt.Sprintf("(%g", *r.LT())
	} else if r.LTE() != nil {
		hi = fmt.Sprintf("%g", *r.LTE())
	}
	return fmt.Sprintf("@%s:[%s %s]", key, lo, hi)
}

// tagEscaper escapes TAG query punctuation. MaStR numbers and German place names
// routinely contain '-', '.', and spaces.
var tagEscaper = strings.NewReplacer(
	"\\", "\\\\", "[", "\\[", "]", "\\]", "|", "\\|",
	",", "\\,", ".", "\\.", "<", "\\<", ">", "\\>",
	"{", "\\{", "}", "\\}", "\"", "\\\"", "'", "\\'",
	":", "\\:", ";", "\\;", "!", "\\!", "@", "\\@",
	"#", "\\#", "$", "\\$", "%", "\\%", "^", "\\^",
	"&", "\\&", "*", "\\*", "(", "\\(", ")", "\\)",
	"-", "\\-", "+", "\\+", "=", "\\=", "~", "\\~",
	" ", "\\ ", "/", "\\/",
)

// vectorToBytes encodes a vector as little-endian FLOAT32, the layout FT vector fields expect.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// VectorBytes exposes the FT vector encoding for callers that write vector fields with HSET.
func VectorBytes(v []float32) string {
	return vectorToBytes(v)
}
