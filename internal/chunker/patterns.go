package chunker

import "regexp"

// declMatcher recognizes top-level declaration lines for one language
// family.
type declMatcher struct {
	patterns []*regexp.Regexp
}

func (m *declMatcher) matches(line string) bool {
	for _, p := range m.patterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

var (
	jvmDecl = &declMatcher{patterns: []*regexp.Regexp{
		regexp.MustCompile(`^\s*(public|private|protected|internal|abstract|final|open|sealed|data|static|case)?\s*(public|private|protected|abstract|final|static)?\s*(class|interface|object|enum|record|trait|annotation)\s+\w`),
		regexp.MustCompile(`^\s*(public|private|protected|internal|override|open|suspend|static|final|synchronized)?\s*(fun|def)\s+\w`),
		regexp.MustCompile(`^\s*companion\s+object\b`),
		regexp.MustCompile(`^\s*(val|var)\s+\w+\s*[:=]`),
	}}

	jsDecl = &declMatcher{patterns: []*regexp.Regexp{
		regexp.MustCompile(`^\s*(export\s+)?(default\s+)?(abstract\s+)?class\s+\w`),
		regexp.MustCompile(`^\s*(export\s+)?interface\s+\w`),
		regexp.MustCompile(`^\s*(export\s+)?(async\s+)?function\s*\*?\s*\w`),
		regexp.MustCompile(`^\s*(export\s+)?(const|let|var)\s+\w+\s*=`),
		regexp.MustCompile(`^\s*(export\s+)?(type|enum)\s+\w`),
	}}

	goDecl = &declMatcher{patterns: []*regexp.Regexp{
		regexp.MustCompile(`^func\s*(\(\s*\w+\s+\*?[\w\.\[\]]+\s*\)\s*)?\w`),
		regexp.MustCompile(`^type\s+\w`),
		regexp.MustCompile(`^(var|const)\s`),
	}}
)

// declPattern selects the declaration matcher for a brace language.
func declPattern(lang string) *declMatcher {
	switch lang {
	case "java", "kotlin", "scala", "groovy":
		return jvmDecl
	case "javascript", "typescript":
		return jsDecl
	default:
		return goDecl
	}
}
