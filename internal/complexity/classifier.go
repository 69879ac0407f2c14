package complexity

// #region imports
import (
	"strings"
	"unicode/utf8"
)

// #endregion

// #region keywords

var difficultyKeywords = []string{
	"refactor", "architecture", "architectural", "concurrent", "concurrency",
	"race condition", "deadlock", "distributed", "migration", "migrate",
	"redesign", "thread-safe", "thread safety", "transaction", "scalab",
	"memory leak", "performance", "optimize", "security", "protocol",
	"backward compat", "invariant",
}

var importPrefixes = []string{
	"import ", "import(", "require(", "#include", "using ",
}

var definitionMarkers = []string{
	"func ", "def ", "class ", "interface ", "struct {", "struct{",
	"fn ", "function ", "impl ", "trait ",
}

// #endregion

// #region classifier

// Classifier scores input text. It holds only configuration and is safe for
// concurrent use.
type Classifier struct {
	cfg Config
}

// NewClassifier returns a classifier with the given configuration.
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Config returns the active configuration.
func (c *Classifier) Config() Config {
	return c.cfg
}

// Classify scores text with the default configuration.
func Classify(text string) Features {
	return NewClassifier(DefaultConfig()).Classify(text)
}

// Classify computes the four sub-scores for text. No I/O, no model call.
// Input beyond MaxInputBytes is dropped before any scanning.
func (c *Classifier) Classify(text string) Features {
	text, truncated := truncate(text, c.cfg.MaxInputBytes)
	lower := strings.ToLower(text)
	lines := strings.Split(lower, "\n")

	f := Features{
		SizeFactor:      c.sizeFactor(lower, lines),
		ImportFactor:    c.importFactor(lines),
		StructureFactor: c.structureFactor(lower, lines),
		KeywordFactor:   c.keywordFactor(lower),
		Truncated:       truncated,
	}
	sum := f.SizeFactor + f.ImportFactor + f.StructureFactor + f.KeywordFactor
	f.Total = min(sum, 1.0)
	f.Bucket = c.cfg.BucketFor(f.Total)
	return f
}

// #endregion

// #region size-factor

// sizeFactor is a saturating step function over token and line counts.
func (c *Classifier) sizeFactor(lower string, lines []string) float64 {
	tokens := len(strings.Fields(lower))
	nonEmpty := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonEmpty++
		}
	}

	var byTokens float64
	switch {
	case tokens >= 400:
		byTokens = 1.0
	case tokens >= 150:
		byTokens = 0.75
	case tokens >= 60:
		byTokens = 0.5
	case tokens >= 20:
		byTokens = 0.25
	}

	var byLines float64
	switch {
	case nonEmpty >= 120:
		byLines = 1.0
	case nonEmpty >= 40:
		byLines = 0.75
	case nonEmpty >= 10:
		byLines = 0.5
	}

	return max(byTokens, byLines) * c.cfg.SizeCap
}

// #endregion

// #region import-factor

// importFactor counts import-like lines; four or more saturate the cap.
func (c *Classifier) importFactor(lines []string) float64 {
	const ceiling = 4
	count := 0
	inBlock := false
	for _, raw := range lines {
		l := strings.TrimSpace(raw)
		if inBlock {
			if strings.HasPrefix(l, ")") {
				inBlock = false
				continue
			}
			if l != "" {
				count++
			}
			continue
		}
		if l == "import (" {
			inBlock = true
			continue
		}
		if isImportLine(l) {
			count++
		}
	}
	return float64(min(count, ceiling)) / ceiling * c.cfg.ImportCap
}

func isImportLine(l string) bool {
	for _, p := range importPrefixes {
		if strings.HasPrefix(l, p) {
			return true
		}
	}
	// python "from x import y", rust "use a::b;"
	if strings.HasPrefix(l, "from ") && strings.Contains(l, " import ") {
		return true
	}
	return strings.HasPrefix(l, "use ") && strings.Contains(l, "::")
}

// #endregion

// #region structure-factor

// structureFactor combines definition count with a nesting depth proxy
// (max brace depth or indentation level, whichever is deeper).
func (c *Classifier) structureFactor(lower string, lines []string) float64 {
	defs := 0
	for _, m := range definitionMarkers {
		defs += strings.Count(lower, m)
	}
	defScore := float64(min(defs, 3)) / 3 * 0.6

	depth := max(braceDepth(lower), indentDepth(lines))
	var nestScore float64
	switch {
	case depth >= 5:
		nestScore = 0.4
	case depth >= 3:
		nestScore = 0.2
	}

	return (defScore + nestScore) * c.cfg.StructureCap
}

func braceDepth(s string) int {
	depth, deepest := 0, 0
	for _, r := range s {
		switch r {
		case '{', '(', '[':
			depth++
			deepest = max(deepest, depth)
		case '}', ')', ']':
			if depth > 0 {
				depth--
			}
		}
	}
	// Parens and brackets inflate depth on ordinary prose; only count code-ish nesting.
	return max(deepest-1, 0)
}

func indentDepth(lines []string) int {
	deepest := 0
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		width := 0
		for _, r := range l {
			if r == '\t' {
				width += 4
			} else if r == ' ' {
				width++
			} else {
				break
			}
		}
		deepest = max(deepest, width/4)
	}
	return deepest
}

// #endregion

// #region keyword-factor

// keywordFactor awards a third of the cap per distinct difficulty marker.
func (c *Classifier) keywordFactor(lower string) float64 {
	hits := 0
	for _, kw := range difficultyKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return float64(min(hits, 3)) / 3 * c.cfg.KeywordCap
}

// #endregion

// #region truncate

func truncate(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}

// #endregion
