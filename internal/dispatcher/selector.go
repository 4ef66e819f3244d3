package dispatcher

import (
	"strconv"
	"strings"

	"github.com/loykin/adasa/internal/registry"
)

// Resolve turns a client-supplied selector into the matching registry
// entries: a bare integer resolves by id; otherwise the string is matched
// as an exact name, then as a base name against every "base-N" instance.
// Grounded on the teacher's StatusAll/StopAll base-name-prefix matching
// (internal/manager/manager.go), generalized to also accept a bare id per
// spec.md's selector glossary entry.
func Resolve(reg *registry.Registry, selector string) []registry.ManagedProcess {
	if id, err := strconv.ParseInt(selector, 10, 64); err == nil {
		if p := reg.LookupByID(id); p != nil {
			return []registry.ManagedProcess{p.Snapshot()}
		}
		return nil
	}
	if p := reg.LookupByName(selector); p != nil {
		return []registry.ManagedProcess{p.Snapshot()}
	}
	prefix := selector + "-"
	var matches []registry.ManagedProcess
	for _, p := range reg.List() {
		if strings.HasPrefix(p.Name, prefix) {
			matches = append(matches, p)
		}
	}
	return matches
}
