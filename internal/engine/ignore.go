package engine

import (
	gitignore "github.com/sabhiram/go-gitignore"
)

var defaultIgnoreLines = []string{
	// office lock and temp files
	`~\$*`,
	".~lock.*#",
	"*.tmp",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

// IgnoreList decides which remote children a pull skips
type IgnoreList struct {
	ignore *gitignore.GitIgnore
}

// NewIgnoreList compiles the default rules plus extra gitignore style lines
func NewIgnoreList(extra []string) *IgnoreList {
	lines := append(append([]string{}, defaultIgnoreLines...), extra...)
	return &IgnoreList{ignore: gitignore.CompileIgnoreLines(lines...)}
}

// ShouldIgnore matches a path relative to the linked folder. Folders end with "/".
func (l *IgnoreList) ShouldIgnore(rel string) bool {
	return l.ignore.MatchesPath(rel)
}
