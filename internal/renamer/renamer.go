package renamer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalid marks validation failures the caller should treat as a bad
// request rather than an internal error.
var ErrInvalid = errors.New("invalid rename request")

var whitespaceRun = regexp.MustCompile(`\s+`)

const invalidNameChars = `<>:"/\|?*`

// Renamed records one applied rename.
type Renamed struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

// Report summarizes a completed rename pass.
type Report struct {
	FolderPath   string    `json:"folder_path"`
	BaseName     string    `json:"base_name"`
	RenamedCount int       `json:"renamed_count"`
	Files        []Renamed `json:"files"`
}

// ValidateBaseName cleans and validates the user-supplied base name:
// no filename-hostile characters, no trailing space or dot, inner
// whitespace runs collapsed.
func ValidateBaseName(baseName string) (string, error) {
	cleaned := strings.TrimSpace(baseName)
	if cleaned == "" {
		return "", fmt.Errorf("%w: base name is required", ErrInvalid)
	}
	if strings.ContainsAny(cleaned, invalidNameChars) {
		return "", fmt.Errorf(`%w: base name contains invalid filename characters (<>:"/\|?*)`, ErrInvalid)
	}
	if strings.HasSuffix(cleaned, " ") || strings.HasSuffix(cleaned, ".") {
		return "", fmt.Errorf("%w: base name cannot end with a space or period", ErrInvalid)
	}

	return whitespaceRun.ReplaceAllString(cleaned, " "), nil
}

// RenamePNGs renames every .png file in dir to <base>_<n>.png, numbering
// from 1 in case-insensitive name order. The rename happens in two phases
// (sources to unique temp names, then temp names to finals) so overlapping
// old and new names cannot collide mid-way.
func RenamePNGs(dir, baseName string) (*Report, error) {
	validated, err := ValidateBaseName(baseName)
	if err != nil {
		return nil, err
	}

	target := expandUser(strings.TrimSpace(dir))
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("%w: folder does not exist", ErrInvalid)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: provided path is not a folder", ErrInvalid)
	}

	pngNames, err := listPNGs(target)
	if err != nil {
		return nil, err
	}
	if len(pngNames) == 0 {
		return nil, fmt.Errorf("%w: no .png files found in the selected folder", ErrInvalid)
	}

	// Refuse to overwrite files outside the rename set.
	current := make(map[string]bool, len(pngNames))
	for _, name := range pngNames {
		current[name] = true
	}
	for i := range pngNames {
		planned := fmt.Sprintf("%s_%d.png", validated, i+1)
		if current[planned] {
			continue
		}
		if _, err := os.Stat(filepath.Join(target, planned)); err == nil {
			return nil, fmt.Errorf("%w: cannot rename because target file already exists: %s", ErrInvalid, planned)
		}
	}

	// Phase one: move everything aside.
	tempNames := make([]string, 0, len(pngNames))
	for _, name := range pngNames {
		tempName := fmt.Sprintf(".__tmp_rename_%s.png", strings.ReplaceAll(uuid.NewString(), "-", ""))
		if err := os.Rename(filepath.Join(target, name), filepath.Join(target, tempName)); err != nil {
			return nil, fmt.Errorf("rename failed: %w", err)
		}
		tempNames = append(tempNames, tempName)
	}

	// Phase two: settle into final names.
	renamed := make([]Renamed, 0, len(tempNames))
	for i, tempName := range tempNames {
		newName := fmt.Sprintf("%s_%d.png", validated, i+1)
		if err := os.Rename(filepath.Join(target, tempName), filepath.Join(target, newName)); err != nil {
			return nil, fmt.Errorf("rename failed: %w", err)
		}
		renamed = append(renamed, Renamed{OldName: pngNames[i], NewName: newName})
	}

	return &Report{
		FolderPath:   target,
		BaseName:     validated,
		RenamedCount: len(renamed),
		Files:        renamed,
	}, nil
}

// listPNGs returns the .png file names in dir, sorted by lowercased name.
func listPNGs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			names = append(names, e.Name())
		}
	}

	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})

	return names, nil
}

func expandUser(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
