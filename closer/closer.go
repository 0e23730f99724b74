/*
Package closer contains helpers for not losing deferred errors
*/
package closer

import (
	"io"

	"github.com/hashicorp/go-multierror"
)

// ErrorHandler closes c and folds any close error into *in, keeping both
// the original error and the close error.
func ErrorHandler(c io.Closer, in *error) {
	Func(c.Close, in)
}

// Func is ErrorHandler for a bare close function.
func Func(f func() error, in *error) {
	cerr := f()
	if cerr == nil {
		return
	}
	if *in == nil {
		*in = cerr
		return
	}
	*in = multierror.Append(*in, cerr)
}
