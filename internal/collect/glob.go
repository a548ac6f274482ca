package collect

import (
	"regexp"
	"strings"
	"sync"
)

// Match reports whether a slash-separated path matches a glob pattern.
//   - *  matches within one path segment (never '/')
//   - ** matches across directories
//   - ?  matches a single character
func Match(path, pattern string) bool {
	re, err := compiledGlob(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(strings.TrimPrefix(path, "./"))
}

var (
	globMu    sync.Mutex
	globCache = map[string]*regexp.Regexp{}
)

// compiledGlob caches the translated pattern. The same dependency patterns
// are matched against every file of every rebuild in Development mode.
func compiledGlob(pattern string) (*regexp.Regexp, error) {
	globMu.Lock()
	defer globMu.Unlock()
	if re, ok := globCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(globToRegex(strings.TrimPrefix(pattern, "./")))
	if err != nil {
		return nil, err
	}
	globCache[pattern] = re
	return re, nil
}

func globToRegex(glob string) string {
	var b strings.Builder
	b.WriteString("^")
	runes := []rune(glob)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if ch == '*' {
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
				continue
			}
			b.WriteString("[^/]*")
			continue
		}
		if ch == '?' {
			b.WriteString(".")
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(ch)))
	}
	b.WriteString("$")
	return b.String()
}
