package harness

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// cueToJSON evaluates a CUE scenario document and exports it as JSON. The
// document must be concrete: every field needs a value, so definitions and
// constraints may be used to build the scenario but not left open.
func cueToJSON(data []byte, filename string) ([]byte, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, cueLoadError(filename, ErrCodeParseFailed, err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(filename, ErrCodeBuildFailed, err)
	}
	out, err := v.MarshalJSON()
	if err != nil {
		return nil, cueLoadError(filename, ErrCodeBuildFailed, err)
	}
	return out, nil
}

// cueLoadError converts a CUE error to a LoadError carrying the position of
// the first error.
func cueLoadError(filename, code string, err error) *LoadError {
	le := &LoadError{Path: filename, Code: code, Message: err.Error()}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		le.Pos = errs[0].Position()
		le.Message = fmt.Sprint(errs[0])
	}
	return le
}
