package pkgutil

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/tools/go/packages"
)

// LoadConfig selects how programs are found. With a ModulePath the packages
// are resolved in module-aware mode from that directory; otherwise GoPath is
// searched in GOPATH mode. IncludeTests also loads the test variants.
type LoadConfig struct {
	GoPath, ModulePath string
	IncludeTests       bool
}

const loadMode = packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
	packages.NeedImports | packages.NeedTypes | packages.NeedTypesSizes | packages.NeedSyntax |
	packages.NeedTypesInfo | packages.NeedDeps

// ErrLoad is returned when the loaded packages contain errors.
var ErrLoad = errors.New("package errors")

var moduleRegex = regexp.MustCompile(`(?m)^module\s+(\S+)`)

// ModuleName reads the module path declared by the go.mod in dir.
func ModuleName(dir string) (string, error) {
	contents, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return "", errors.Wrapf(err, "no go.mod in %s", dir)
	}
	m := moduleRegex.FindSubmatch(contents)
	if m == nil {
		return "", errors.Errorf("%s/go.mod declares no module", dir)
	}
	return string(m[1]), nil
}

// parseRelative parses files under names relative to the working directory,
// so positions printed in counterexamples do not depend on the machine.
func parseRelative(cwd string) func(*token.FileSet, string, []byte) (*ast.File, error) {
	return func(fset *token.FileSet, filename string, src []byte) (*ast.File, error) {
		if rel, err := filepath.Rel(cwd, filename); err == nil && !strings.HasPrefix(rel, "..") {
			filename = rel
		}
		return parser.ParseFile(fset, filename, src, parser.AllErrors|parser.ParseComments)
	}
}

func (cfg LoadConfig) packagesConfig() (*packages.Config, error) {
	gopath, err := filepath.Abs(cfg.GoPath)
	if err != nil {
		return nil, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	config := &packages.Config{
		Mode:      loadMode,
		Tests:     cfg.IncludeTests,
		ParseFile: parseRelative(cwd),
		Env:       append(os.Environ(), "GOPATH="+gopath, "GO111MODULE=off"),
	}
	if cfg.ModulePath == "" {
		return config, nil
	}

	dir, err := filepath.Abs(cfg.ModulePath)
	if err != nil {
		return nil, err
	}
	if _, err := ModuleName(dir); err != nil {
		return nil, err
	}
	config.Dir = dir
	config.Env = append(os.Environ(), "GOPATH="+gopath, "GO111MODULE=on")
	return config, nil
}

// LoadPackages loads the packages matching pattern.
func LoadPackages(cfg LoadConfig, pattern string) ([]*packages.Package, error) {
	config, err := cfg.packagesConfig()
	if err != nil {
		return nil, err
	}
	return load(config, pattern)
}

// LoadPackagesFromSource loads a single main package from source. Used by
// tests.
func LoadPackagesFromSource(source string) ([]*packages.Package, error) {
	return LoadFiles(map[string]string{"main.go": source})
}

// LoadFiles loads one package made of the given files, keyed by base name.
func LoadFiles(files map[string]string) ([]*packages.Package, error) {
	const dir = "/fake/testpackage"
	overlay := make(map[string][]byte, len(files))
	names := make([]string, 0, len(files))
	for name, src := range files {
		path := filepath.Join(dir, name)
		overlay[path] = []byte(src)
		names = append(names, path)
	}
	sort.Strings(names)

	config := &packages.Config{
		Mode:    loadMode,
		Env:     append(os.Environ(), "GO111MODULE=off", "GOPATH=/fake"),
		Overlay: overlay,
	}
	// File arguments form a single command-line package.
	return load(config, names...)
}

func load(config *packages.Config, query ...string) ([]*packages.Package, error) {
	pkgs, err := packages.Load(config, query...)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", strings.Join(query, " "))
	}

	var msgs []string
	packages.Visit(pkgs, nil, func(pkg *packages.Package) {
		for _, e := range pkg.Errors {
			msgs = append(msgs, e.Error())
		}
	})
	if len(msgs) > 0 {
		return nil, errors.Wrap(ErrLoad, strings.Join(msgs, "; "))
	}
	if config.Tests {
		pkgs = withoutTestDuplicates(pkgs)
	}
	return pkgs, nil
}

// withoutTestDuplicates drops the plain variant of every package that is
// also loaded with its tests, so each function exists only once.
func withoutTestDuplicates(pkgs []*packages.Package) []*packages.Package {
	ids := make(map[string]bool, len(pkgs))
	for _, pkg := range pkgs {
		ids[pkg.ID] = true
	}
	res := pkgs[:0:0]
	for _, pkg := range pkgs {
		if !ids[pkg.ID+" ["+pkg.ID+".test]"] {
			res = append(res, pkg)
		}
	}
	return res
}
