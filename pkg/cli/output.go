package cli

import (
	"encoding/json"
	"errors"
	"reflect"

	"github.com/devicelab-dev/uiresolve/pkg/core"
	"github.com/urfave/cli/v2"
)

// failure is the JSON form of a resolution error.
type failure struct {
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Suggestions []string               `json:"suggestions,omitempty"`
}

// envelope pairs a result with the error that came with it. Failed
// resolutions still carry their ranked candidates or fallback trail.
type envelope struct {
	Result interface{} `json:"result,omitempty"`
	Error  *failure    `json:"error,omitempty"`
}

func writeJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// report prints res and err as one document and returns err so the
// process exits non-zero on failure.
func report(c *cli.Context, res interface{}, err error) error {
	out := envelope{}
	if !isNil(res) {
		out.Result = res
	}
	if err != nil {
		out.Error = failureOf(err)
	}
	if out.Result == nil && out.Error != nil && out.Error.Code == "error" {
		// Nothing useful to print beyond the error line
		return err
	}
	if werr := writeJSON(c, out); werr != nil {
		return werr
	}
	return err
}

func failureOf(err error) *failure {
	var re *core.ResolveError
	if !errors.As(err, &re) {
		return &failure{Code: "error", Message: err.Error()}
	}
	f := &failure{
		Code:        re.Code,
		Message:     re.Message,
		Suggestions: re.Suggestions,
	}
	// Trail entries already appear in the result
	for k, v := range re.Details {
		if k == "trail" {
			continue
		}
		if f.Details == nil {
			f.Details = make(map[string]interface{})
		}
		f.Details[k] = v
	}
	return f
}

// isNil reports whether v is nil or a typed nil pointer.
func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}
