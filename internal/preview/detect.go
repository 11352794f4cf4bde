package preview

import (
	"encoding/json"
	"strings"
)

// DetectProjectType classifies a file set by signature, exactly per
// §4.9's four rules, checked in the order that disambiguates a
// frontend package manifest from a backend one.
func DetectProjectType(files map[string]string) ProjectType {
	if hasBackendDependencyManifest(files) {
		return ProjectPythonService
	}
	if pkg, ok := frontendPackageManifest(files); ok {
		if declaresReact(pkg) {
			return ProjectReactSPA
		}
		return ProjectNodeService
	}
	if hasTopLevelHTMLEntryOnly(files) {
		return ProjectStaticSite
	}
	return ProjectUnknown
}

func hasBackendDependencyManifest(files map[string]string) bool {
	for _, name := range []string{"requirements.txt", "pyproject.toml", "Pipfile"} {
		if _, ok := files[name]; ok {
			return true
		}
	}
	return false
}

func frontendPackageManifest(files map[string]string) (map[string]any, bool) {
	raw, ok := files["package.json"]
	if !ok {
		return nil, false
	}
	var pkg map[string]any
	if err := json.Unmarshal([]byte(raw), &pkg); err != nil {
		return nil, true // present but unparsable; still a frontend manifest
	}
	return pkg, true
}

var dominantUILibraries = []string{"react", "react-dom"}

func declaresReact(pkg map[string]any) bool {
	for _, field := range []string{"dependencies", "devDependencies"} {
		deps, ok := pkg[field].(map[string]any)
		if !ok {
			continue
		}
		for _, lib := range dominantUILibraries {
			if _, present := deps[lib]; present {
				return true
			}
		}
	}
	return false
}

// hasTopLevelHTMLEntryOnly reports a top-level .html file. Reaching
// this check already means neither a backend nor a frontend package
// manifest was found, so any top-level HTML file is by elimination the
// project's entry point.
func hasTopLevelHTMLEntryOnly(files map[string]string) bool {
	for path := range files {
		if !strings.Contains(path, "/") && strings.HasSuffix(path, ".html") {
			return true
		}
	}
	return false
}
