package criteria

import (
	"github.com/viant/procsim/runtime/process"
	"github.com/viant/procsim/service/dao"
)

// FilterByState reports whether state satisfies every State parameter;
// parameters with other names are ignored.
func FilterByState(state process.State, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != dao.StateParameter {
			continue
		}
		switch actual := parameter.Value.(type) {
		case string:
			if string(state) != actual {
				return false
			}
		case []string:
			matched := false
			for _, s := range actual {
				if string(state) == s {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
	}
	return true
}
