package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// genderTokenRegexp finds the leftmost gender token, German or English.
	genderTokenRegexp = regexp.MustCompile(`(?i)\b(weiblich|female|männlich|male|diverse|divers|unbekannt|unknown)\b`)
	// percentRegexp captures a 1-3 digit confidence, percent sign optional
	percentRegexp = regexp.MustCompile(`(\d{1,3})\s*%?`)

	angleBrackets = strings.NewReplacer("<", " ", ">", " ")
)

// canonicalGender maps every accepted token variant to its canonical label.
var canonicalGender = map[string]string{
	"weiblich":  "female",
	"female":    "female",
	"männlich":  "male",
	"male":      "male",
	"divers":    "diverse",
	"diverse":   "diverse",
	"unbekannt": "unknown",
	"unknown":   "unknown",
}

// audienceSynonyms maps each canonical audience label to its keyword
// variants. Declared order is the match order: the first label with a
// keyword hit wins.
var audienceSynonyms = []struct {
	label    string
	keywords *regexp.Regexp
}{
	{"female", regexp.MustCompile(`(?i)\b(weiblich|frau|frauen|damen|female|woman|women|ladies)\b`)},
	{"male", regexp.MustCompile(`(?i)\b(männlich|mann|männer|herren|male|man|men|gentlemen)\b`)},
	{"diverse", regexp.MustCompile(`(?i)\b(divers|diverse|nonbinär|non-binary|nonbinary|trans|transgender)\b`)},
	{"both", regexp.MustCompile(`(?i)\b(bi|bisexuell|bisexual|beide|both|alle|all|everyone)\b`)},
	{"unknown", regexp.MustCompile(`(?i)\b(unbekannt|unknown|unklar|unclear)\b`)},
}

// cleanResponse strips angle brackets and collapses whitespace runs so the
// token matchers see a single-spaced line.
func cleanResponse(s string) string {
	s = angleBrackets.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeGender parses raw model output into the canonical
// "<token> <percent>%" format. The token search is case-insensitive and
// whole-word; a missing percentage defaults to 50 because some models omit
// the number, and parsed values are clamped to [0,100].
func NormalizeGender(raw string) (string, error) {
	cleaned := cleanResponse(raw)

	match := genderTokenRegexp.FindString(cleaned)
	if match == "" {
		return "", fmt.Errorf("%w: no gender token in %q", ErrUnparsableResponse, cleaned)
	}
	gender := canonicalGender[strings.ToLower(match)]

	percent := 50
	if m := percentRegexp.FindStringSubmatch(cleaned); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			percent = clamp(n, 0, 100)
		}
	}

	return fmt.Sprintf("%s %d%%", gender, percent), nil
}

// NormalizeAudience resolves raw model output to one of the five canonical
// audience labels via the synonym table.
func NormalizeAudience(raw string) (string, error) {
	cleaned := cleanResponse(raw)

	for _, entry := range audienceSynonyms {
		if entry.keywords.MatchString(cleaned) {
			return entry.label, nil
		}
	}

	return "", fmt.Errorf("%w: no audience keyword in %q", ErrUnparsableResponse, cleaned)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
