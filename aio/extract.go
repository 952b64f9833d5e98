package aio

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/seo-optimizer/insights/models"
)

// Defaults for fields the reply does not mention.
const (
	DefaultOverall   = 65.0
	DefaultClarity   = 65.0
	DefaultStructure = 60.0
	DefaultLanguage  = 70.0
)

var (
	scoreLine   = regexp.MustCompile(`(?im)^[\W_]*(overall|clarity|structure|language)(?:\s+score)?[*_]*\s*[:=\-]\s*[*_]*\s*(\d{1,3}(?:\.\d+)?)\s*(?:/\s*(\d{1,3}))?`)
	topicsLine  = regexp.MustCompile(`(?im)^[\W_]*(?:key\s+|main\s+)?topics?[*_]*\s*[:=\-]\s*(.*)$`)
	summaryLine = regexp.MustCompile(`(?im)^[\W_]*summary[*_]*\s*[:=\-]\s*(.+)$`)
	confusingHd = regexp.MustCompile(`(?i)^[\W_]*confusing(?:\s+passages?)?[*_]*\s*[:=\-]\s*(.*)$`)
	bulletLine  = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
)

type jsonReply struct {
	Overall   *float64 `json:"overallScore"`
	Clarity   *float64 `json:"clarityScore"`
	Structure *float64 `json:"structureScore"`
	Language  *float64 `json:"languageScore"`
	Topics    []string `json:"topics"`
	Confusing []string `json:"confusingPassages"`
	Summary   string   `json:"summary"`
}

// Extract reads scores, topics and confusing passages out of a free-form reply.
// It accepts the line format the prompt asks for, loose variations of it and
// a JSON object. Anything missing gets a default; it never fails.
func Extract(text string) models.AioResult {
	if res, ok := extractJSON(text); ok {
		return res
	}

	scores := map[string]float64{}
	for _, m := range scoreLine.FindAllStringSubmatch(text, -1) {
		name := strings.ToLower(m[1])
		if _, seen := scores[name]; seen {
			continue
		}
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		if m[3] != "" {
			if scale, err := strconv.ParseFloat(m[3], 64); err == nil && scale > 0 {
				v = v / scale * 100
			}
		}
		scores[name] = clampScore(v)
	}

	res := models.AioResult{
		ClarityScore:      pick(scores, "clarity", DefaultClarity),
		StructureScore:    pick(scores, "structure", DefaultStructure),
		LanguageScore:     pick(scores, "language", DefaultLanguage),
		Topics:            []string{},
		ConfusingPassages: confusingPassages(text),
	}
	res.OverallScore = overall(scores)

	if m := topicsLine.FindStringSubmatch(text); m != nil {
		res.Topics = splitList(m[1])
	}
	if m := summaryLine.FindStringSubmatch(text); m != nil {
		res.Summary = strings.TrimSpace(m[1])
	}
	return res
}

// overall uses the stated overall score, else the mean of whatever sub-scores
// were given, else the default.
func overall(scores map[string]float64) float64 {
	if v, ok := scores["overall"]; ok {
		return v
	}
	sum, n := 0.0, 0
	for _, name := range []string{"clarity", "structure", "language"} {
		if v, ok := scores[name]; ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return DefaultOverall
	}
	return math.Round(sum / float64(n))
}

func extractJSON(text string) (models.AioResult, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return models.AioResult{}, false
	}
	var reply jsonReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &reply); err != nil {
		return models.AioResult{}, false
	}
	if reply.Overall == nil && reply.Clarity == nil && reply.Structure == nil && reply.Language == nil {
		return models.AioResult{}, false
	}

	scores := map[string]float64{}
	for name, v := range map[string]*float64{
		"overall": reply.Overall, "clarity": reply.Clarity,
		"structure": reply.Structure, "language": reply.Language,
	} {
		if v != nil {
			scores[name] = clampScore(*v)
		}
	}
	res := models.AioResult{
		OverallScore:      overall(scores),
		ClarityScore:      pick(scores, "clarity", DefaultClarity),
		StructureScore:    pick(scores, "structure", DefaultStructure),
		LanguageScore:     pick(scores, "language", DefaultLanguage),
		Topics:            cleanList(reply.Topics),
		ConfusingPassages: cleanList(reply.Confusing),
		Summary:           strings.TrimSpace(reply.Summary),
	}
	return res, true
}

func confusingPassages(text string) []string {
	out := []string{}
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		m := confusingHd.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		if inline := strings.TrimSpace(m[1]); inline != "" && !isNone(inline) {
			out = append(out, strings.Trim(inline, `"`))
		}
		for j := i + 1; j < len(lines); j++ {
			b := bulletLine.FindStringSubmatch(lines[j])
			if b == nil {
				if strings.TrimSpace(lines[j]) == "" && len(out) == 0 {
					continue
				}
				break
			}
			if item := strings.Trim(strings.TrimSpace(b[1]), `"`); item != "" && !isNone(item) {
				out = append(out, item)
			}
		}
		break
	}
	return out
}

func splitList(raw string) []string {
	return cleanList(strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' }))
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.Trim(strings.TrimSpace(item), `."'`)
		if item == "" || isNone(item) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func isNone(s string) bool {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(s), ".")) {
	case "none", "n/a", "na", "-":
		return true
	}
	return false
}

func pick(scores map[string]float64, name string, def float64) float64 {
	if v, ok := scores[name]; ok {
		return v
	}
	return def
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, math.Round(v)))
}
