package clean

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Step kinds understood by FromSpec.
const (
	KindStandardize      = "standardize"
	KindQualityFilter    = "quality_filter"
	KindDedupe           = "dedupe"
	KindAnnotate         = "annotate"
	KindStripMarkup      = "strip_markup"
	KindUnicodeNormalize = "unicode_normalize"
)

// Kinds lists every step kind FromSpec can build.
func Kinds() []string {
	kinds := make([]string, 0, len(builders))
	for k := range builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

type builder func(p params) (Step, error)

var builders = map[string]builder{
	KindStandardize: func(p params) (Step, error) {
		opts := DefaultStandardizerOptions()
		var err error
		if opts.TrimWhitespace, err = p.getBool("trim_whitespace", opts.TrimWhitespace); err != nil {
			return nil, err
		}
		if opts.NormalizeWhitespace, err = p.getBool("normalize_whitespace", opts.NormalizeWhitespace); err != nil {
			return nil, err
		}
		if opts.StandardizePunctuation, err = p.getBool("standardize_punctuation", opts.StandardizePunctuation); err != nil {
			return nil, err
		}
		return NewStandardizer(opts), nil
	},
	KindQualityFilter: func(p params) (Step, error) {
		min, err := p.getInt("min_length", 0)
		if err != nil {
			return nil, err
		}
		max, err := p.getInt("max_length", Unbounded)
		if err != nil {
			return nil, err
		}
		return NewQualityFilter(min, max)
	},
	KindDedupe: func(p params) (Step, error) {
		key, err := p.getString("selected_key", "")
		if err != nil {
			return nil, err
		}
		return NewDuplicateRemover(key)
	},
	KindAnnotate: func(p params) (Step, error) {
		var opts AnnotatorOptions
		var err error
		if opts.AddWordCount, err = p.getBool("add_word_count", false); err != nil {
			return nil, err
		}
		if opts.AddSentenceCount, err = p.getBool("add_sentence_count", false); err != nil {
			return nil, err
		}
		return NewMetadataAnnotator(opts), nil
	},
	KindStripMarkup: func(p params) (Step, error) {
		return NewMarkupStripper(), nil
	},
	KindUnicodeNormalize: func(p params) (Step, error) {
		form, err := p.getString("form", "NFC")
		if err != nil {
			return nil, err
		}
		return NewUnicodeNormalizer(form)
	},
}

// FromSpec builds a step of the given kind from loosely typed parameters,
// as decoded from YAML or JSON. Unknown kinds and malformed parameters are
// reported immediately.
func FromSpec(kind string, raw map[string]any) (Step, error) {
	b, ok := builders[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown step kind %q (known: %s)", ErrConfig, kind, strings.Join(Kinds(), ", "))
	}
	step, err := b(params(raw))
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", kind, err)
	}
	return step, nil
}

type params map[string]any

func (p params) getBool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a boolean, got %T", ErrConfig, key, v)
	}
	return b, nil
}

func (p params) getInt(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		if n >= math.MinInt && n <= math.MaxInt {
			return int(n), nil
		}
	case uint64:
		if n <= math.MaxInt {
			return int(n), nil
		}
	case float64:
		if math.IsInf(n, 1) {
			return Unbounded, nil
		}
		// 2^63 itself does not fit, hence the strict upper comparison.
		if n == math.Trunc(n) && n >= math.MinInt && n < -math.MinInt {
			return int(n), nil
		}
	default:
		return 0, fmt.Errorf("%w: %s must be an integer, got %T", ErrConfig, key, v)
	}
	return 0, fmt.Errorf("%w: %s is out of range: %v", ErrConfig, key, v)
}

func (p params) getString(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrConfig, key, v)
	}
	return s, nil
}
