package manifest

import (
	"github.com/pmezard/go-difflib/difflib"
)

// Diff returns a unified diff from a stored rendering of the manifest to the
// current one. An empty string means they match.
func (m *Manifest) Diff(storedName string, stored []byte) (string, error) {
	current, err := m.Render()
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(stored)),
		B:        difflib.SplitLines(string(current)),
		FromFile: storedName,
		ToFile:   "current",
		Context:  3,
	})
}
