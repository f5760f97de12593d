package keywords

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Supported target systems for keyword model files
const (
	SystemLinux       = "linux"
	SystemRaspberryPi = "raspberry-pi"
	SystemMac         = "mac"
)

// Keyword is an immutable descriptor of one discovered wake word model
type Keyword struct {
	Name      string // Unique keyword name, e.g. "porcupine"
	Language  string // Language code, e.g. "en"
	ModelPath string // Path to the .ppn keyword model file
}

// Catalog holds the keywords and engine library paths discovered at startup.
// It is read-only after Discover returns.
type Catalog struct {
	keywords map[string]Keyword
	libPaths map[string]string // language -> .pv library path
}

// NewCatalog builds a catalog from already-known keywords and library
// paths, bypassing disk discovery
func NewCatalog(kws []Keyword, libPaths map[string]string) *Catalog {
	catalog := &Catalog{
		keywords: make(map[string]Keyword, len(kws)),
		libPaths: make(map[string]string, len(libPaths)),
	}
	for _, kw := range kws {
		catalog.keywords[kw.Name] = kw
	}
	for lang, path := range libPaths {
		catalog.libPaths[lang] = path
	}
	return catalog
}

// DetectSystem guesses the target system from the build platform
func DetectSystem() string {
	if runtime.GOOS == "darwin" {
		return SystemMac
	}
	if runtime.GOARCH == "arm" || runtime.GOARCH == "arm64" {
		return SystemRaspberryPi
	}
	return SystemLinux
}

// Discover scans the data directory for engine library files
// (lib/common/*.pv) and keyword models (resources/**/*.ppn) matching the
// given system. Models found under customDir override built-in ones;
// custom model files are named <keyword>_<language>.ppn and are not
// system-specific.
func Discover(dataDir, customDir, system string) (*Catalog, error) {
	catalog := &Catalog{
		keywords: make(map[string]Keyword),
		libPaths: make(map[string]string),
	}

	// Engine library files, one per language: porcupine_params_<lang>.pv
	// (the default english file has no language suffix)
	libPattern := filepath.Join(dataDir, "lib", "common", "*.pv")
	libFiles, err := filepath.Glob(libPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to scan library files %s: %w", libPattern, err)
	}

	for _, libPath := range libFiles {
		stem := strings.TrimSuffix(filepath.Base(libPath), ".pv")
		parts := strings.Split(stem, "_")
		lang := parts[len(parts)-1]
		if lang == "params" {
			lang = "en"
		}
		catalog.libPaths[lang] = libPath
	}

	// Built-in keyword models: resources/keyword_files_<lang>/<system>/<name>_<system>.ppn
	resourcesDir := filepath.Join(dataDir, "resources")
	err = walkModels(resourcesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".ppn") {
			return nil
		}

		stem := strings.TrimSuffix(filepath.Base(path), ".ppn")
		sep := strings.LastIndex(stem, "_")
		if sep < 0 {
			return nil
		}

		// Skip models built for other systems
		if stem[sep+1:] != system {
			return nil
		}

		name := stem[:sep]
		lang := keywordLanguage(path)
		catalog.keywords[name] = Keyword{Name: name, Language: lang, ModelPath: path}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan keyword models in %s: %w", resourcesDir, err)
	}

	// Custom wake words: <customDir>/**/<name>_<lang>.ppn
	if customDir != "" {
		err = walkModels(customDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".ppn") {
				return nil
			}

			stem := strings.TrimSuffix(filepath.Base(path), ".ppn")
			sep := strings.LastIndex(stem, "_")
			if sep < 0 {
				return nil
			}

			name := stem[:sep]
			lang := stem[sep+1:]
			catalog.keywords[name] = Keyword{Name: name, Language: lang, ModelPath: path}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan custom wake words in %s: %w", customDir, err)
		}
	}

	return catalog, nil
}

// keywordLanguage extracts the language from a built-in model path.
// Built-in model layout is resources/keyword_files_<lang>/<system>/<file>.ppn
// with plain "keyword_files" meaning english.
func keywordLanguage(path string) string {
	dir := filepath.Base(filepath.Dir(filepath.Dir(path)))
	if idx := strings.LastIndex(dir, "_"); idx >= 0 {
		suffix := dir[idx+1:]
		if suffix != "files" {
			return suffix
		}
	}
	return "en"
}

// Get returns the keyword with the given name
func (c *Catalog) Get(name string) (Keyword, bool) {
	kw, ok := c.keywords[name]
	return kw, ok
}

// LibraryPath returns the engine library path for a language
func (c *Catalog) LibraryPath(language string) (string, bool) {
	path, ok := c.libPaths[language]
	return path, ok
}

// Names returns all discovered keyword names (unordered)
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.keywords))
	for name := range c.keywords {
		names = append(names, name)
	}
	return names
}

// Keywords returns all discovered keywords (unordered)
func (c *Catalog) Keywords() []Keyword {
	kws := make([]Keyword, 0, len(c.keywords))
	for _, kw := range c.keywords {
		kws = append(kws, kw)
	}
	return kws
}

// Len returns the number of discovered keywords
func (c *Catalog) Len() int {
	return len(c.keywords)
}

// walkModels walks dir like filepath.WalkDir, treating a missing
// directory as empty.
func walkModels(dir string, fn fs.WalkDirFunc) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(dir, fn)
}
