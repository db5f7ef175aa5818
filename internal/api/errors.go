package api

import "fmt"

// errInvalidQueryParam reports an unparseable query parameter by name. The
// message is safe to return to the client verbatim.
func errInvalidQueryParam(name string) error {
	return fmt.Errorf("invalid %s query parameter", name)
}
