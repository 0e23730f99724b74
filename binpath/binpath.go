/*
Package binpath finds server executables.

Roots are searched in the order given and the first executable found wins. The
process search path is only consulted where the SearchPath root is listed, so a
server installed in a preferred location is never silently swapped for another
binary of the same name elsewhere on $PATH.
*/
package binpath

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"
)

// SearchPath can be listed as a root to stand for each directory of $PATH in order.
const SearchPath = "$PATH"

var ErrNotFound = errors.New("executable not found")

type NotFoundError struct {
	Name     string
	Searched []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %v (searched %s)", e.Name, ErrNotFound, strings.Join(e.Searched, ", "))
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

type Resolver struct {
	// Env optionally names an environment variable holding the full path of the
	// executable. When set and non-empty it is the only candidate.
	Env string
	// Roots are searched in order. A root may be a glob ("/usr/lib/postgresql/*"),
	// its matches are tried highest version first.
	Roots []string
	// Subdirs are tried in order below each root; the root itself is tried when
	// this is empty.
	Subdirs []string
}

// Find returns the absolute path of the first executable called name.
func Find(name string, roots ...string) (string, error) {
	return Resolver{Roots: roots}.Find(name)
}

// Find returns the absolute path of the first executable called name.
func (r Resolver) Find(name string) (string, error) {
	if r.Env != "" {
		if p := os.Getenv(r.Env); p != "" {
			if found, ok := executable(p); ok {
				return found, nil
			}
			return "", &NotFoundError{Name: name, Searched: []string{r.Env + "=" + p}}
		}
	}

	candidates := r.candidates(name)
	for _, c := range candidates {
		if found, ok := executable(c); ok {
			return found, nil
		}
	}
	return "", &NotFoundError{Name: name, Searched: candidates}
}

func (r Resolver) candidates(name string) []string {
	subdirs := r.Subdirs
	if len(subdirs) == 0 {
		subdirs = []string{""}
	}

	var out []string
	for _, root := range r.Roots {
		if root == SearchPath {
			for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
				if dir == "" {
					continue
				}
				out = append(out, filepath.Join(dir, name))
			}
			continue
		}
		for _, base := range expand(root) {
			for _, sub := range subdirs {
				out = append(out, filepath.Join(base, sub, name))
			}
		}
	}
	return out
}

func expand(root string) []string {
	if !strings.ContainsAny(root, "*?[{") {
		return []string{root}
	}
	matches, err := doublestar.FilepathGlob(root)
	if err != nil {
		return nil
	}
	sort.Slice(matches, func(i, j int) bool {
		return naturalLess(matches[j], matches[i])
	})
	return matches
}

func executable(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	found, err := exec.LookPath(abs)
	if err != nil {
		return "", false
	}
	return found, true
}

// naturalLess compares strings treating runs of digits as numbers, so that
// ".../postgresql/9.6" sorts before ".../postgresql/16".
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		ra, rb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ra) && unicode.IsDigit(rb) {
			na, resta := digits(a)
			nb, restb := digits(b)
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			a, b = resta, restb
			continue
		}
		if ra != rb {
			return ra < rb
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func digits(s string) (string, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return strings.TrimLeft(s[:i], "0"), s[i:]
}
