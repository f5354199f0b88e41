package p4rt

import (
	"errors"
	"fmt"
	"strings"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrTableNotFound is returned when the bound pipeline has no table with
	// the requested name.
	ErrTableNotFound = errors.New("table not found")
	// ErrActionNotFound is returned when an action is not known to the
	// bound pipeline or not allowed in a table.
	ErrActionNotFound = errors.New("action not found")
	// ErrFieldNotFound is returned for unknown match fields or action
	// parameters.
	ErrFieldNotFound = errors.New("field not found")
	// ErrNotBound is returned by table lookups before BindPipeline.
	ErrNotBound = errors.New("pipeline is not bound")
)

// writeError expands the per-update details the runtime server attaches to a
// failed Write into a single error.
func writeError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	var details []string
	for idx, detail := range st.Details() {
		e, ok := detail.(*p4v1.Error)
		if !ok || codes.Code(e.GetCanonicalCode()) == codes.OK {
			continue
		}
		details = append(details, fmt.Sprintf("update %d: %s: %s",
			idx, codes.Code(e.GetCanonicalCode()), e.GetMessage()))
	}

	if len(details) == 0 {
		return err
	}
	return fmt.Errorf("%w (%s)", err, strings.Join(details, "; "))
}
