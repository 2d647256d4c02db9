package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Matcher is a list of compiled patterns. It is safe for concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

type rule struct {
	source   string
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
	// base scopes a rule from a nested .gitignore to its directory.
	base string
}

// New returns an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// NewFromPatterns compiles patterns into a Matcher with no base.
func NewFromPatterns(patterns ...string) *Matcher {
	m := New()
	for _, p := range patterns {
		m.AddPattern(p)
	}
	return m
}

// AddPattern adds one gitignore line.
func (m *Matcher) AddPattern(pattern string) {
	m.AddPatternWithBase(pattern, "")
}

// AddPatternWithBase adds a line that only applies below base.
// Blank lines and comments are ignored.
func (m *Matcher) AddPatternWithBase(line, base string) {
	r, ok := compile(line, strings.Trim(filepath.ToSlash(base), "/"))
	if !ok {
		return
	}
	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFromFile reads a .gitignore file whose patterns apply below base.
func (m *Matcher) AddFromFile(file, base string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open gitignore: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.AddPatternWithBase(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read gitignore %s: %w", file, err)
	}
	return nil
}

// Len reports the number of compiled rules.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// Match reports whether p is ignored by this matcher alone.
func (m *Matcher) Match(p string, isDir bool) bool {
	return MatchAll(p, isDir, m)
}

// MatchAll evaluates the matchers in order as one rule list. Each ancestor
// directory of p is checked first: once a parent directory is excluded
// nothing beneath it can be re-included, as in git.
func MatchAll(p string, isDir bool, matchers ...*Matcher) bool {
	p = strings.Trim(filepath.ToSlash(p), "/")
	if p == "" || p == "." {
		return false
	}

	parts := strings.Split(p, "/")
	for i := 1; i <= len(parts); i++ {
		sub := strings.Join(parts[:i], "/")
		last := i == len(parts)
		ignored := evaluate(sub, !last || isDir, matchers)
		if last {
			return ignored
		}
		if ignored {
			return true
		}
	}
	return false
}

func evaluate(p string, isDir bool, matchers []*Matcher) bool {
	ignored := false
	for _, m := range matchers {
		if m == nil {
			continue
		}
		m.mu.RLock()
		for i := range m.rules {
			if m.rules[i].matches(p, isDir) {
				ignored = !m.rules[i].negate
			}
		}
		m.mu.RUnlock()
	}
	return ignored
}

func (r *rule) matches(p string, isDir bool) bool {
	if r.dirOnly && !isDir {
		return false
	}
	if r.base != "" {
		if !strings.HasPrefix(p, r.base+"/") {
			return false
		}
		p = p[len(r.base)+1:]
	}
	if r.anchored {
		return r.re.MatchString(p)
	}
	return r.re.MatchString(path.Base(p))
}

func compile(line, base string) (rule, bool) {
	escapedSpace := strings.HasSuffix(line, `\ `)
	line = strings.TrimRight(line, " \t\r")
	if escapedSpace {
		line = strings.TrimSuffix(line, `\`) + " "
	}
	line = strings.TrimLeft(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false
	}

	r := rule{source: line, base: base}
	switch {
	case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
		line = line[1:]
	case strings.HasPrefix(line, "!"):
		r.negate = true
		line = line[1:]
	}

	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		r.anchored = true
		line = strings.TrimLeft(line, "/")
	}
	if strings.Contains(line, "/") {
		r.anchored = true
	}
	if line == "" {
		return rule{}, false
	}

	re, err := regexp.Compile("^" + toRegex(line) + "$")
	if err != nil {
		return rule{}, false
	}
	r.re = re
	return r, true
}

// toRegex translates glob syntax; "**" crosses directory boundaries.
func toRegex(glob string) string {
	var sb strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				atStart := i == 0 || glob[i-1] == '/'
				switch {
				case atStart && i+2 < len(glob) && glob[i+2] == '/':
					sb.WriteString("(?:.*/)?")
					i += 2
				case atStart && i+2 == len(glob):
					sb.WriteString(".*")
					i++
				default:
					sb.WriteString("[^/]*")
					i++
				}
				continue
			}
			sb.WriteString("[^/]*")
		case '?':
			sb.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				sb.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			sb.WriteString("[" + class + "]")
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				i++
				sb.WriteString(regexp.QuoteMeta(string(glob[i])))
			}
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return sb.String()
}
