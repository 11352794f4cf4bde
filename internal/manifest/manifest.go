// Package manifest defines the ProjectManifest schema (§4.3) — the
// authoritative, immutable plan a generation proceeds from — along with
// its validator and the default manifest substituted when the Core agent
// cannot produce a valid one.
package manifest

import (
	"fmt"
	"strings"
	"unicode"
)

// AppType is one of the closed set of application archetypes a manifest
// may declare.
type AppType string

const (
	AppTypeCRUD       AppType = "crud"
	AppTypeEcommerce  AppType = "ecommerce"
	AppTypeDashboard  AppType = "dashboard"
	AppTypeSocial     AppType = "social"
	AppTypeTodo       AppType = "todo"
	AppTypeBlog       AppType = "blog"
	AppTypeAuth       AppType = "auth"
	AppTypeBooking    AppType = "booking"
	AppTypeAPI        AppType = "api"
)

var validAppTypes = map[AppType]bool{
	AppTypeCRUD: true, AppTypeEcommerce: true, AppTypeDashboard: true,
	AppTypeSocial: true, AppTypeTodo: true, AppTypeBlog: true,
	AppTypeAuth: true, AppTypeBooking: true, AppTypeAPI: true,
}

// AgentRole names one of the specialist agents a manifest may request.
type AgentRole string

const (
	RoleArch    AgentRole = "ARCH"
	RoleBackend AgentRole = "BACKEND"
	RoleUIX     AgentRole = "UIX"
	RoleDebug   AgentRole = "DEBUG"
	RoleQuality AgentRole = "QUALITY"
	RoleTest    AgentRole = "TEST"
)

var validAgentRoles = map[AgentRole]bool{
	RoleArch: true, RoleBackend: true, RoleUIX: true,
	RoleDebug: true, RoleQuality: true, RoleTest: true,
}

// FileRole tags a planned file with the structural purpose the required
// files set (§4.3) is checked against. "other" files carry no obligation.
type FileRole string

const (
	FileRoleBackendEntry            FileRole = "backend_entry"
	FileRoleDependencyManifest      FileRole = "dependency_manifest"
	FileRoleFrontendEntryComponent  FileRole = "frontend_entry_component"
	FileRoleFrontendPackageManifest FileRole = "frontend_package_manifest"
	FileRoleHTMLEntry               FileRole = "html_entry"
	FileRoleBundlerConfig           FileRole = "bundler_config"
	FileRoleFrontendBootstrap       FileRole = "frontend_bootstrap"
	FileRoleOther                   FileRole = "other"
)

// requiredFileRoles is the minimum set §4.3 requires files_to_generate to
// cover.
var requiredFileRoles = []FileRole{
	FileRoleBackendEntry,
	FileRoleDependencyManifest,
	FileRoleFrontendEntryComponent,
	FileRoleFrontendPackageManifest,
	FileRoleHTMLEntry,
	FileRoleBundlerConfig,
	FileRoleFrontendBootstrap,
}

// FieldSpec is one field of a DataModel.
type FieldSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// DataModel is one persisted entity a manifest plans to generate.
type DataModel struct {
	Name   string      `json:"name"`
	Fields []FieldSpec `json:"fields"`
}

// APIEndpoint is one HTTP route a manifest plans to generate.
type APIEndpoint struct {
	Path          string `json:"path"`
	Method        string `json:"method"`
	RequestModel  string `json:"request_model,omitempty"`
	ResponseModel string `json:"response_model,omitempty"`
	Description   string `json:"description,omitempty"`
}

// FileSpec is one file a manifest plans to generate.
type FileSpec struct {
	Path    string   `json:"path"`
	Purpose string   `json:"purpose"`
	Role    FileRole `json:"role,omitempty"`
}

// ProjectManifest is the authoritative plan for one generation (§4.3).
// It is produced once by the Core agent and is immutable for the rest of
// the pipeline.
type ProjectManifest struct {
	Analysis        string            `json:"analysis"`
	AppType         AppType           `json:"app_type"`
	Features        []string          `json:"features"`
	TechStack       map[string]string `json:"tech_stack"`
	Models          []DataModel       `json:"models"`
	Endpoints       []APIEndpoint     `json:"endpoints"`
	FilesToGenerate []FileSpec        `json:"files_to_generate"`
	Integrations    []string          `json:"integrations"`
	AgentsNeeded    []AgentRole       `json:"agents_needed"`
	Priority        string            `json:"priority"`
	// ImageHint optionally names a reference image (e.g. a design mock)
	// supplied alongside the generation request, for agents bound to a
	// vision-capable provider.
	ImageHint string `json:"image_hint,omitempty"`
	// Confidence is 1.0 for an LLM-produced manifest that passed
	// validation, and reduced for a substituted default manifest.
	Confidence float64 `json:"confidence"`
}

// Validate enforces every invariant §4.3 names. It returns the first
// violation found; callers that want every violation should use
// ValidateAll.
func Validate(m *ProjectManifest) error {
	if errs := ValidateAll(m); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidateAll enforces every invariant §4.3 names and returns every
// violation found, not just the first.
func ValidateAll(m *ProjectManifest) []error {
	var errs []error

	if m == nil {
		return []error{fmt.Errorf("manifest: nil manifest")}
	}
	if !validAppTypes[m.AppType] {
		errs = append(errs, fmt.Errorf("manifest: unknown app_type %q", m.AppType))
	}
	if len(m.Features) == 0 {
		errs = append(errs, fmt.Errorf("manifest: features must be non-empty"))
	}
	for _, model := range m.Models {
		if model.Name == "" || !unicode.IsUpper([]rune(model.Name)[0]) {
			errs = append(errs, fmt.Errorf("manifest: model name %q must begin with an uppercase letter", model.Name))
		}
	}
	for _, ep := range m.Endpoints {
		if !strings.HasPrefix(ep.Path, "/") {
			errs = append(errs, fmt.Errorf("manifest: endpoint path %q must begin with \"/\"", ep.Path))
		}
	}
	for _, role := range m.AgentsNeeded {
		if !validAgentRoles[role] {
			errs = append(errs, fmt.Errorf("manifest: unknown agent role %q", role))
		}
	}
	if missing := missingRequiredFiles(m.FilesToGenerate); len(missing) > 0 {
		errs = append(errs, fmt.Errorf("manifest: files_to_generate missing required roles: %v", missing))
	}
	return errs
}

func missingRequiredFiles(files []FileSpec) []FileRole {
	present := map[FileRole]bool{}
	for _, f := range files {
		present[f.Role] = true
	}
	var missing []FileRole
	for _, role := range requiredFileRoles {
		if !present[role] {
			missing = append(missing, role)
		}
	}
	return missing
}

// DefaultManifest builds the fallback manifest substituted when the Core
// agent's LLM output is unparsable or fails validation. It is keyed by
// project name and the raw description, carries a reduced confidence,
// and itself satisfies every invariant Validate checks.
func DefaultManifest(projectName, description string) *ProjectManifest {
	entry := "app.py"
	m := &ProjectManifest{
		Analysis: fmt.Sprintf("Default manifest substituted for project %q: %s", projectName, strings.TrimSpace(description)),
		AppType:  AppTypeTodo,
		Features: []string{
			"Create items",
			"List items",
			"Mark items complete",
		},
		TechStack: map[string]string{
			"backend":  "python-flask",
			"frontend": "react",
			"styling":  "css",
		},
		Models: []DataModel{
			{
				Name: "Item",
				Fields: []FieldSpec{
					{Name: "id", Type: "string", Required: true},
					{Name: "title", Type: "string", Required: true},
					{Name: "done", Type: "bool", Required: true},
				},
			},
		},
		Endpoints: []APIEndpoint{
			{Path: "/api/items", Method: "GET", ResponseModel: "Item[]"},
			{Path: "/api/items", Method: "POST", RequestModel: "Item", ResponseModel: "Item"},
			{Path: "/api/items/{id}", Method: "DELETE"},
		},
		FilesToGenerate: []FileSpec{
			{Path: entry, Purpose: "Backend entrypoint and routes", Role: FileRoleBackendEntry},
			{Path: "requirements.txt", Purpose: "Backend dependency manifest", Role: FileRoleDependencyManifest},
			{Path: "frontend/src/App.jsx", Purpose: "Frontend root component", Role: FileRoleFrontendEntryComponent},
			{Path: "frontend/package.json", Purpose: "Frontend dependency manifest", Role: FileRoleFrontendPackageManifest},
			{Path: "frontend/index.html", Purpose: "HTML entry point", Role: FileRoleHTMLEntry},
			{Path: "frontend/vite.config.js", Purpose: "Bundler configuration", Role: FileRoleBundlerConfig},
			{Path: "frontend/src/main.jsx", Purpose: "Frontend bootstrap", Role: FileRoleFrontendBootstrap},
		},
		Integrations: []string{},
		AgentsNeeded: []AgentRole{RoleBackend, RoleUIX, RoleTest},
		Priority:     "Ship a minimal working todo list end to end.",
		Confidence:   0.3,
	}
	return m
}
