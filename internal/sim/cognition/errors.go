package cognition

import "fmt"

func errMissing(field string) error {
	return fmt.Errorf("decision missing %s", field)
}
