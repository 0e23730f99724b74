// Package env reads typed settings from environment variables, keeping the
// default when a variable is unset and recording every variable it was asked
// about so that they can be listed.
package env

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
)

// Var is one consulted environment variable and the default it overrides.
type Var struct {
	env     string
	envType string
	def     any
}

func (f Var) String() string {
	return fmt.Sprintf("%-32s %-10s (%v)", f.env, f.envType, f.def)
}

func (f Var) Name() string {
	return f.env
}

type Vars []Var

// Loader accumulates parse errors so that every bad variable is reported at once.
type Loader struct {
	vars map[string]Var
	err  error
}

func NewLoader() *Loader {
	return &Loader{
		vars: make(map[string]Var),
	}
}

func (l *Loader) Err() error {
	return l.err
}

// String sets fld to the value of env when it is set, even to the empty string.
func (l *Loader) String(fld *string, env string) {
	l.addVar(*fld, env, "string")
	if val, ok := os.LookupEnv(env); ok {
		*fld = val
	}
}

// Bool parses env as per strconv.ParseBool.
func (l *Loader) Bool(fld *bool, env string) {
	lookup(l, fld, env, "bool", strconv.ParseBool)
}

// Float parses env as a float64.
func (l *Loader) Float(fld *float64, env string) {
	lookup(l, fld, env, "float", func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// Duration parses env as per time.ParseDuration.
func (l *Loader) Duration(fld *time.Duration, env string) {
	lookup(l, fld, env, "duration", time.ParseDuration)
}

// lookup leaves fld alone when env is unset, empty or does not parse; parse
// failures are added to the loader error.
func lookup[T any](l *Loader, fld *T, env, envType string, parse func(string) (T, error)) {
	l.addVar(*fld, env, envType)
	val, ok := os.LookupEnv(env)
	if !ok || val == "" {
		return
	}
	v, err := parse(val)
	if err != nil {
		l.err = multierror.Append(l.err, fmt.Errorf("env var: %q caused an error: %w", env, err))
		return
	}
	*fld = v
}

// VarsUsed lists every variable consulted, sorted by name.
func (l *Loader) VarsUsed() Vars {
	vars := make(Vars, 0, len(l.vars))
	for _, v := range l.vars {
		vars = append(vars, v)
	}
	slices.SortFunc(vars, func(a, b Var) int {
		return strings.Compare(a.env, b.env)
	})
	return vars
}

func (l *Loader) addVar(def any, env, envType string) {
	if _, ok := l.vars[env]; ok {
		panic("duplicate environment variable " + env)
	}
	l.vars[env] = Var{
		env:     env,
		envType: envType,
		def:     def,
	}
}
