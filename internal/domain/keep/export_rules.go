package keep

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	MaxFilenameLength = 255

	UncheckedBoxGlyph = "☐"
	CheckedBoxGlyph   = "☑"

	UncheckedBoxMarkdown = "- [ ]"
	CheckedBoxMarkdown   = " - [x]"

	UntitledName = "Untitled"
)

var illegalFilenameRunes = map[rune]struct{}{
	'<': {}, '>': {}, ':': {}, '"': {}, '/': {}, '\\': {}, '|': {}, '?': {}, '*': {}, '&': {},
	'\n': {}, '\r': {}, '\t': {},
}

var illegalTagRunes = map[rune]struct{}{
	'~': {}, '`': {}, '!': {}, '@': {}, '$': {}, '%': {}, '^': {}, '(': {}, ')': {}, '+': {}, '=': {},
	'{': {}, '}': {}, '[': {}, ']': {}, '<': {}, '>': {}, ';': {}, ':': {}, ',': {}, '.': {}, '"': {},
	'/': {}, '\\': {}, '|': {}, '?': {}, '*': {}, '&': {}, '\n': {}, '\r': {},
}

// urlPattern is deliberately permissive: the $-_ range also covers brackets and
// parentheses, which is why RewriteText is not idempotent.
var urlPattern = regexp.MustCompile(`https?://(?:[a-zA-Z]|[0-9]|[~#$-_@.&+]|[!*\(\),]|(?:%[0-9a-fA-F][0-9a-fA-F]))+`)

var checkboxReplacer = strings.NewReplacer(
	UncheckedBoxGlyph, UncheckedBoxMarkdown,
	CheckedBoxGlyph, CheckedBoxMarkdown,
)

func IsIllegalFilenameRune(r rune) bool {
	_, ok := illegalFilenameRunes[r]
	return ok
}

// SanitizeFilename clamps title to MaxFilenameLength runes and then maps every
// illegal rune to a single space.
func SanitizeFilename(title string) string {
	runes := []rune(title)
	if len(runes) > MaxFilenameLength {
		runes = runes[:MaxFilenameLength]
	}
	for i, r := range runes {
		if IsIllegalFilenameRune(r) {
			runes[i] = ' '
		}
	}
	return string(runes)
}

// ExportTitle turns a note title into the base name used for its files.
func ExportTitle(title string) string {
	return SanitizeFilename(strings.ReplaceAll(title, " ", "_"))
}

// NameRegistry holds every name issued during one run, in issue order.
type NameRegistry struct {
	names []string
	index map[string]struct{}
}

func NewNameRegistry() *NameRegistry {
	return &NameRegistry{index: map[string]struct{}{}}
}

func (r *NameRegistry) Contains(name string) bool {
	_, ok := r.index[name]
	return ok
}

func (r *NameRegistry) Len() int {
	return len(r.names)
}

func (r *NameRegistry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Dedupe returns candidate, or candidate_N for the smallest N not yet issued,
// and records the result.
func (r *NameRegistry) Dedupe(candidate string) string {
	if r.index == nil {
		r.index = map[string]struct{}{}
	}
	name := candidate
	for n := 1; r.Contains(name); n++ {
		name = candidate + "_" + strconv.Itoa(n)
	}
	r.names = append(r.names, name)
	r.index[name] = struct{}{}
	return name
}

func RewriteText(text string) string {
	text = checkboxReplacer.Replace(text)
	return LinkifyURLs(text)
}

// LinkifyURLs wraps every distinct bare URL as [URL](URL). Replacement is by
// substring, so every occurrence of a matched URL is wrapped, including ones
// embedded in a longer match.
func LinkifyURLs(text string) string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return text
	}
	seen := make(map[string]struct{}, len(matches))
	for _, url := range matches {
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		text = strings.ReplaceAll(text, url, "["+url+"]("+url+")")
	}
	return text
}

// SanitizeTag turns a label name into a frontmatter tag: illegal runes are
// dropped, whitespace runs become a single hyphen, and purely numeric tags get a
// leading "y" because Obsidian rejects them.
func SanitizeTag(label string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.TrimSpace(label) {
		if _, ok := illegalTagRunes[r]; ok {
			continue
		}
		if unicode.IsSpace(r) {
			pendingHyphen = b.Len() > 0
			continue
		}
		if pendingHyphen {
			b.WriteRune('-')
			pendingHyphen = false
		}
		b.WriteRune(r)
	}
	tag := b.String()
	if tag == "" {
		return ""
	}
	for _, r := range tag {
		if !unicode.IsDigit(r) {
			return tag
		}
	}
	return "y" + tag
}

func AttachmentBaseName(uniqueName string, index int) string {
	return uniqueName + strconv.Itoa(index)
}

// MediaMarkup is the line appended to a note body for one attachment.
func MediaMarkup(label string, target string) string {
	if strings.ContainsAny(target, " ()") {
		target = "<" + target + ">"
	}
	return "\n![" + escapeBrackets(label) + "](" + target + ")"
}

func escapeBrackets(s string) string {
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}
