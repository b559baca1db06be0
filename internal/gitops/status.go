package gitops

import (
	"strings"
	"time"
)

// WorkingTree groups porcelain status entries.
type WorkingTree struct {
	Modified []string
	New      []string
	Deleted  []string
}

// HasChanges reports whether any entry was recognised.
func (w WorkingTree) HasChanges() bool {
	return len(w.Modified)+len(w.New)+len(w.Deleted) > 0
}

// Total counts every entry.
func (w WorkingTree) Total() int {
	return len(w.Modified) + len(w.New) + len(w.Deleted)
}

// only keeps the entries whose path appears in paths.
func (w WorkingTree) only(paths []string) WorkingTree {
	keep := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		keep[p] = struct{}{}
	}
	filter := func(in []string) []string {
		var out []string
		for _, p := range in {
			if _, ok := keep[p]; ok {
				out = append(out, p)
			}
		}
		return out
	}
	return WorkingTree{Modified: filter(w.Modified), New: filter(w.New), Deleted: filter(w.Deleted)}
}

// ParseStatus reads `git status --porcelain` output. Untracked and added
// files are new; renames and other codes are ignored.
func ParseStatus(out string) WorkingTree {
	var tree WorkingTree
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) < 4 {
			continue
		}
		code := strings.TrimSpace(line[:2])
		path := strings.Trim(line[3:], `"`)
		switch code {
		case "M", "MM":
			tree.Modified = append(tree.Modified, path)
		case "A", "AM", "??":
			tree.New = append(tree.New, path)
		case "D":
			tree.Deleted = append(tree.Deleted, path)
		}
	}
	return tree
}

// PagesURL derives the GitHub Pages URL from an origin remote. Remotes
// that are not on github.com yield "".
func PagesURL(remote string) string {
	remote = strings.TrimSpace(remote)
	var repoPath string
	switch {
	case strings.HasPrefix(remote, "https://github.com/"):
		repoPath = strings.TrimPrefix(remote, "https://github.com/")
	case strings.HasPrefix(remote, "git@github.com:"):
		repoPath = strings.TrimPrefix(remote, "git@github.com:")
	default:
		return ""
	}
	repoPath = strings.TrimSuffix(strings.TrimSuffix(repoPath, "/"), ".git")
	user, repo, ok := strings.Cut(repoPath, "/")
	if !ok || user == "" || repo == "" {
		return ""
	}
	return "https://" + user + ".github.io/" + repo + "/"
}

// BranchName returns prefix followed by the timestamp.
func BranchName(prefix string, t time.Time) string {
	return prefix + t.Format("20060102_150405")
}

// FormatTemplate replaces {key} placeholders with values. Unknown
// placeholders are left as they are.
func FormatTemplate(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for key, value := range values {
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
