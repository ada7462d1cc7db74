package transcript

import (
	"regexp"
	"strings"
)

// rewrite is a single regular-expression substitution.
type rewrite struct {
	re   *regexp.Regexp
	repl string
}

// clauseRules insert a reading comma (、) before connectives that are not
// already preceded by punctuation, then split long sentences after causal and
// concessive particles. Rules run in order; later rules see earlier output.
var clauseRules = []rewrite{
	{regexp.MustCompile(`([^、。])そして`), "${1}、そして"},
	{regexp.MustCompile(`([^、。])しかし`), "${1}、しかし"},
	{regexp.MustCompile(`([^、。])ですが`), "${1}、ですが"},
	{regexp.MustCompile(`([^、。])また`), "${1}、また"},
	{regexp.MustCompile(`([^、。])けれども`), "${1}、けれども"},
	{regexp.MustCompile(`([^、。])だから`), "${1}、だから"},
	{regexp.MustCompile(`([^、。])ので`), "${1}、ので"},
	{regexp.MustCompile(`(.{10,})から(.{10,})`), "${1}から、${2}"},
	{regexp.MustCompile(`(.{10,})ので(.{10,})`), "${1}ので、${2}"},
	{regexp.MustCompile(`(.{10,})けど(.{10,})`), "${1}けど、${2}"},
}

// sentenceEnders are the suffixes that already close a sentence.
var sentenceEnders = []string{"。", ".", "？", "?", "！", "!"}

// Japanese returns the formatter used for Japanese recognition output:
// clause commas, then a closing full stop (。) when the text does not
// already end a sentence. Blank input is returned unchanged.
func Japanese() Formatter {
	return FormatterFunc(func(text string) string {
		if strings.TrimSpace(text) == "" {
			return text
		}
		return Chain{FormatterFunc(addClauseCommas), FormatterFunc(addFullStop)}.Format(text)
	})
}

func addClauseCommas(text string) string {
	for _, r := range clauseRules {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	return text
}

func addFullStop(text string) string {
	if text == "" {
		return text
	}
	for _, end := range sentenceEnders {
		if strings.HasSuffix(text, end) {
			return text
		}
	}
	return text + "。"
}
