package modules

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Code string

const (
	Dashboard       Code = "dashboard"
	Employees       Code = "employees"
	Departments     Code = "departments"
	MasterData      Code = "master_data"
	Settings        Code = "settings"
	Roles           Code = "roles"
	Recruitment     Code = "recruitment"
	Leave           Code = "leave"
	Organizations   Code = "organizations"
	PlatformRoles   Code = "platform_roles"
	PlatformModules Code = "platform_modules"
)

type Scope string

const (
	ScopeOrg      Scope = "org"
	ScopePlatform Scope = "platform"
)

var ErrUnknownModule = errors.New("module not found")

type Module struct {
	Code        Code   `yaml:"code" json:"code"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Scope       Scope  `yaml:"scope" json:"scope"`
	Core        bool   `yaml:"core" json:"isCore"`
}

// Registry is the closed set of module codes. Lookups of codes that are not
// in the catalog fail instead of silently matching nothing.
type Registry struct {
	modules []Module
	byCode  map[Code]Module
}

//go:embed catalog.yaml
var catalogYAML []byte

type catalogFile struct {
	Modules []Module `yaml:"modules"`
}

func Parse(data []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse module catalog: %w", err)
	}
	if len(file.Modules) == 0 {
		return nil, errors.New("module catalog is empty")
	}

	reg := &Registry{byCode: make(map[Code]Module, len(file.Modules))}
	for _, mod := range file.Modules {
		mod.Code = Code(strings.TrimSpace(string(mod.Code)))
		if mod.Code == "" {
			return nil, errors.New("module catalog entry without code")
		}
		if mod.Code != Code(strings.ToLower(string(mod.Code))) {
			return nil, fmt.Errorf("module code %q must be lower case", mod.Code)
		}
		if mod.Scope == "" {
			mod.Scope = ScopeOrg
		}
		if mod.Scope != ScopeOrg && mod.Scope != ScopePlatform {
			return nil, fmt.Errorf("module %q has invalid scope %q", mod.Code, mod.Scope)
		}
		if _, dup := reg.byCode[mod.Code]; dup {
			return nil, fmt.Errorf("duplicate module code %q", mod.Code)
		}
		reg.byCode[mod.Code] = mod
		reg.modules = append(reg.modules, mod)
	}
	return reg, nil
}

// Default returns the registry built from the embedded catalog.
func Default() *Registry {
	reg, err := Parse(catalogYAML)
	if err != nil {
		panic(err)
	}
	return reg
}

func (r *Registry) Lookup(code string) (Module, error) {
	mod, ok := r.byCode[Code(strings.TrimSpace(code))]
	if !ok {
		return Module{}, fmt.Errorf("%w: %s", ErrUnknownModule, code)
	}
	return mod, nil
}

// MustLookup is for route wiring, where an unknown code is a programming error.
func (r *Registry) MustLookup(code Code) Module {
	mod, err := r.Lookup(string(code))
	if err != nil {
		panic(err)
	}
	return mod
}

func (r *Registry) All() []Module {
	out := make([]Module, len(r.modules))
	copy(out, r.modules)
	return out
}

func (r *Registry) ByScope(scope Scope) []Module {
	var out []Module
	for _, mod := range r.modules {
		if mod.Scope == scope {
			out = append(out, mod)
		}
	}
	return out
}

func (r *Registry) IsCore(code Code) bool {
	mod, ok := r.byCode[code]
	return ok && mod.Core
}

// Codes returns the registered codes of scope in sorted order.
func (r *Registry) Codes(scope Scope) []Code {
	var out []Code
	for _, mod := range r.ByScope(scope) {
		out = append(out, mod.Code)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
