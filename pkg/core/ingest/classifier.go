package ingest

import (
	"fmt"
	"strings"
)

// ContentClassifier decides whether downloaded bytes are usable filing
// content or an index page, a blocked-request page, or an XBRL-metadata
// stub. It is an ordered rule list evaluated top to bottom; the first
// rule with an opinion wins. The ordering is load-bearing: size and
// complete-submission checks come first so that large real filings are
// never rejected by the metadata-density heuristics aimed at small
// XBRL stub pages.
type ContentClassifier struct {
	rules []classifierRule
}

// Verdict is a classification outcome. Reason is diagnostic text for
// logs, not parsed by anything.
type Verdict struct {
	Valid  bool
	Reason string
}

type classifierRule struct {
	name string
	eval func(in classifierInput) *Verdict
}

type classifierInput struct {
	size int
	head string // lowercased first 20k characters
	// indicator counts over head
	blocked   bool
	xbrlMeta  int
	financial int
	items     int
	index     int
}

const classifierHeadWindow = 20000

var blockedPhrases = []string{
	"undeclared automated tool",
	"your request originates",
	"access denied",
}

var xbrlMetadataPhrases = []string{
	"entity information [line items]",
	"period type:",
	"definitionboolean flag",
	"namespace prefix:",
	"data type:",
	"balance type:",
	"entity central index key",
	"entity registrant name",
	"entity address",
}

var financialStatementPhrases = []string{
	"consolidated statements of operations",
	"consolidated statements of income",
	"income statement",
	"statement of operations",
	"revenues",
	"net sales",
	"cost of sales",
	"gross profit",
	"operating expenses",
	"operating income",
	"income before income taxes",
	"provision for income taxes",
	"net income",
	"earnings per share",
	"basic",
	"diluted",
}

var itemSectionPhrases = []string{
	"item 1.",
	"item 2.",
	"item 3.",
	"part i",
	"part ii",
}

var indexPagePhrases = []string{
	"directory list of",
	"quick edgar tutorial",
	"company filings search",
}

// NewContentClassifier builds the classifier with its fixed rule order.
func NewContentClassifier() *ContentClassifier {
	return &ContentClassifier{rules: []classifierRule{
		{"very-large", func(in classifierInput) *Verdict {
			if in.size >= 200000 {
				return &Verdict{true, "very large file, likely valid"}
			}
			return nil
		}},
		{"complete-submission", func(in classifierInput) *Verdict {
			hasMarkers := strings.Contains(in.head, "<sec-document>") ||
				(strings.Contains(in.head, "<document>") && strings.Contains(in.head, "</document>"))
			if hasMarkers && in.size >= 50000 {
				return &Verdict{true, "SEC complete submission file"}
			}
			return nil
		}},
		{"blocked", func(in classifierInput) *Verdict {
			if in.blocked {
				return &Verdict{false, "SEC blocked request"}
			}
			return nil
		}},
		{"xbrl-metadata-stub", func(in classifierInput) *Verdict {
			if in.xbrlMeta >= 4 && in.financial == 0 && in.items == 0 {
				return &Verdict{false, fmt.Sprintf(
					"pure XBRL metadata file (%d metadata indicators, no financial statements)", in.xbrlMeta)}
			}
			return nil
		}},
		{"index-page", func(in classifierInput) *Verdict {
			if in.index >= 2 && in.financial == 0 && in.items == 0 {
				return &Verdict{false, "index page without filing content"}
			}
			return nil
		}},
		{"financial-content", func(in classifierInput) *Verdict {
			if in.financial >= 3 {
				return &Verdict{true, fmt.Sprintf("filing with financial statements (%d indicators)", in.financial)}
			}
			if in.items >= 2 {
				return &Verdict{true, fmt.Sprintf("filing with Item sections (%d indicators)", in.items)}
			}
			if in.financial >= 1 && in.size >= 100000 {
				return &Verdict{true, fmt.Sprintf("large file with financial content (%d indicators)", in.financial)}
			}
			return nil
		}},
		{"too-small", func(in classifierInput) *Verdict {
			if in.size < 20000 {
				return &Verdict{false, fmt.Sprintf("file too small (%d bytes)", in.size)}
			}
			return nil
		}},
		{"default", func(in classifierInput) *Verdict {
			return &Verdict{false, fmt.Sprintf(
				"insufficient financial statement content (%d financial, %d item indicators)",
				in.financial, in.items)}
		}},
	}}
}

// Classify evaluates the rule list over the content.
func (c *ContentClassifier) Classify(content []byte) Verdict {
	in := newClassifierInput(content)
	for _, r := range c.rules {
		if v := r.eval(in); v != nil {
			return *v
		}
	}
	// The default rule always fires; this is unreachable.
	return Verdict{false, "no rule matched"}
}

func newClassifierInput(content []byte) classifierInput {
	head := strings.ToValidUTF8(string(content), "")
	if len(head) > classifierHeadWindow {
		head = head[:classifierHeadWindow]
	}
	head = strings.ToLower(head)

	return classifierInput{
		size:      len(content),
		head:      head,
		blocked:   countPhrases(head, blockedPhrases) > 0,
		xbrlMeta:  countPhrases(head, xbrlMetadataPhrases),
		financial: countPhrases(head, financialStatementPhrases),
		items:     countPhrases(head, itemSectionPhrases),
		index:     countPhrases(head, indexPagePhrases),
	}
}

func countPhrases(text string, phrases []string) int {
	count := 0
	for _, p := range phrases {
		if strings.Contains(text, p) {
			count++
		}
	}
	return count
}
