package record

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/museumatlas/curator/internal/model"
)

// NormalizeURL canonicalizes a website value: scheme defaulted to https,
// scheme and host lowercased, fragment dropped, trailing slash stripped.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("normalize: empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrapf(err, "normalize: parse url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", eris.Errorf("normalize: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", eris.Errorf("normalize: url %q has no host", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	out := u.String()
	return strings.TrimSuffix(out, "/"), nil
}

// durationAliases maps free-text visit length estimates onto the closed
// bucket enum. Keys are matched after lowercasing and trimming.
var durationAliases = map[string]model.VisitDuration{
	"under_1h":        model.DurationQuick,
	"1_3h":            model.DurationHalfDay,
	"3_6h":            model.DurationFullDay,
	"multi_day":       model.DurationMultiDay,
	"quick visit":     model.DurationQuick,
	"under an hour":   model.DurationQuick,
	"half day":        model.DurationHalfDay,
	"half a day":      model.DurationHalfDay,
	"a few hours":     model.DurationHalfDay,
	"full day":        model.DurationFullDay,
	"all day":         model.DurationFullDay,
	"whole day":       model.DurationFullDay,
	"multiple days":   model.DurationMultiDay,
	"several days":    model.DurationMultiDay,
	"more than a day": model.DurationMultiDay,
}

var hourRangeRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:-|–|to)?\s*(\d+(?:\.\d+)?)?\s*(hours?|hrs?|h\b|minutes?|mins?|m\b)`)

// NormalizeDuration maps a free-text visit length onto a VisitDuration
// bucket. Values that map to no bucket are an error; the applier rejects
// them without attempting a merge.
func NormalizeDuration(raw string) (model.VisitDuration, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", eris.New("normalize: empty duration")
	}
	if bucket, ok := durationAliases[s]; ok {
		return bucket, nil
	}

	m := hourRangeRe.FindStringSubmatch(s)
	if m == nil {
		return "", eris.Errorf("normalize: duration %q maps to no bucket", raw)
	}

	upper, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return "", eris.Wrapf(err, "normalize: duration %q", raw)
	}
	if m[2] != "" {
		if v, perr := strconv.ParseFloat(m[2], 64); perr == nil {
			upper = v
		}
	}
	if strings.HasPrefix(m[3], "m") {
		upper /= 60
	}

	switch {
	case upper < 1:
		return model.DurationQuick, nil
	case upper <= 3:
		return model.DurationHalfDay, nil
	case upper <= 8:
		return model.DurationFullDay, nil
	default:
		return model.DurationMultiDay, nil
	}
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeLocality folds a locality name for grouping: accents stripped,
// lowercased, whitespace collapsed. Used by the cluster-bonus sibling count
// so "São Paulo" and "Sao Paulo" land in the same cluster.
func NormalizeLocality(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	return strings.Join(strings.Fields(folded), " ")
}
