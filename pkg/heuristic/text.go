package heuristic

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/devicelab-dev/uiresolve/pkg/hierarchy"
)

const (
	maxStableRunes = 12
	shortRunes     = 6

	textBase        = 0.6
	followBonus     = 0.25
	interactBonus   = 0.15
	compactBonus    = 0.10
	singleScript    = 0.05
	unstableText    = 0.1
	textGate        = 0.8
	compactMinRunes = 2
	compactMaxRunes = 4
)

var stableKeywords = []string{
	"关注", "已关注", "取消关注", "已添加",
	"Follow", "Following", "Unfollow",
	"点赞", "已点赞", "Like", "Liked",
	"收藏", "已收藏", "Favorite",
	"分享", "Share", "转发", "Repost",
	"评论", "Comment", "回复", "Reply",
	"更多", "More", "查看", "View",
	"编辑", "Edit", "删除", "Delete",
}

var followKeywords = []string{"关注", "已关注", "Follow", "Following"}

var interactionKeywords = []string{"点赞", "Like", "收藏", "分享", "评论"}

var actionWords = []string{"确定", "取消", "保存", "提交", "发布", "OK", "Cancel", "Save", "Submit"}

// TextStability judges whether visible text is a reliable match key.
type TextStability struct {
	number *regexp2.Regexp
	clock  *regexp2.Regexp
	date   *regexp2.Regexp
	price  *regexp2.Regexp
}

// NewTextStability compiles the volatile-text patterns.
func NewTextStability() *TextStability {
	return &TextStability{
		number: mustCompile(`^[\d,\.]+$`),
		clock:  mustCompile(`^\d{1,2}[:：]\d{2}$`),
		date:   mustCompile(`^\d{1,2}[-/]\d{1,2}$`),
		price:  mustCompile(`^[¥$€£]\d+(\.\d+)?$`),
	}
}

// Stable reports whether text can serve as a match key, with the reason.
func (s *TextStability) Stable(text string) (bool, string) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return false, "empty text"
	case matches(s.number, text):
		return false, "pure number"
	case matches(s.clock, text), matches(s.date, text):
		return false, "time or date"
	case matches(s.price, text):
		return false, "price"
	}

	if kw, ok := containsAny(text, stableKeywords); ok {
		return true, "stable keyword " + kw
	}
	n := utf8.RuneCountInString(text)
	if n > maxStableRunes {
		return false, "text too long"
	}
	if n <= shortRunes && !strings.ContainsFunc(text, unicode.IsDigit) {
		return true, "short text without digits"
	}
	if kw, ok := containsAny(text, actionWords); ok {
		return true, "UI action word " + kw
	}
	return false, "no stable text rule applies"
}

// Confidence scores text in [0.1, 1]; unstable text scores 0.1 and empty
// text 0.
func (s *TextStability) Confidence(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	if ok, _ := s.Stable(text); !ok {
		return unstableText
	}

	c := textBase
	if _, ok := containsAny(text, followKeywords); ok {
		c += followBonus
	}
	if _, ok := containsAny(text, interactionKeywords); ok {
		c += interactBonus
	}
	if n := utf8.RuneCountInString(text); n >= compactMinRunes && n <= compactMaxRunes {
		c += compactBonus
	}
	if singleScriptText(text) {
		c += singleScript
	}
	return clamp(c, unstableText, 1)
}

// Match judges the node's text, falling back to its content-desc.
func (s *TextStability) Match(n *hierarchy.Node) Result {
	text := strings.TrimSpace(n.Text)
	if text == "" {
		text = strings.TrimSpace(n.ContentDesc)
	}
	r := Result{Matcher: MatcherTextStability}
	if text == "" {
		r.Explain = "no text"
		return r
	}
	ok, why := s.Stable(text)
	r.Confidence = s.Confidence(text)
	r.PassedGate = ok && r.Confidence >= textGate
	if ok {
		r.Explain = fmt.Sprintf("stable text %q (%s)", text, why)
	} else {
		r.Explain = fmt.Sprintf("unstable text %q (%s)", text, why)
	}
	return r
}

func containsAny(s string, words []string) (string, bool) {
	for _, w := range words {
		if strings.Contains(s, w) {
			return w, true
		}
	}
	return "", false
}

// singleScriptText reports whether text is all CJK ideographs or all ASCII
// letters, ignoring whitespace.
func singleScriptText(text string) bool {
	han, latin := true, true
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		if !unicode.Is(unicode.Han, r) {
			han = false
		}
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			latin = false
		}
	}
	return han || latin
}
