// Package template prepares user scripts for execution by substituting
// {{name}} placeholders.
//
// Substitution is permissive: a placeholder with no matching variable is left
// in the script unchanged.
package template

import (
	"regexp"
)

// OutputMarker is the placeholder replaced with the path the script must
// write its result payload to.
const OutputMarker = "output_file"

var placeholder = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_.\-]*)\}\}`)

// Configured is a script ready to run together with the location of its
// result payload.
type Configured struct {
	Script     string
	OutputPath string
}

// Configure replaces every {{name}} in tmpl with vars[name]. The output
// marker always resolves to outputPath, even when vars carries an entry of
// the same name.
func Configure(tmpl string, vars map[string]string, outputPath string) Configured {
	script := placeholder.ReplaceAllStringFunc(tmpl, func(token string) string {
		name := token[2 : len(token)-2]
		if name == OutputMarker {
			return outputPath
		}
		if v, ok := vars[name]; ok {
			return v
		}
		return token
	})
	return Configured{Script: script, OutputPath: outputPath}
}

// Unresolved returns the names of placeholders in script that have no value,
// in order of first appearance.
func Unresolved(script string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(script, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
