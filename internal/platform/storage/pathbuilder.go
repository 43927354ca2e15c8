package storage

import (
	"fmt"
	"path"
	"strings"
)

// CategorySeparator joins the category label and the rest of a legacy image name.
const CategorySeparator = "--"

// ImagePath joins the image prefix and a file name after validating the name.
func ImagePath(prefix, name string) (string, error) {
	name, err := validateFileName(name)
	if err != nil {
		return "", err
	}
	return prefix + name, nil
}

// UploadName builds "<category>--<base name without extension>--<id>" for a new upload.
func UploadName(category, fileName, id string) (string, error) {
	if err := ValidateCategory(category); err != nil {
		return "", err
	}
	category = strings.TrimSpace(category)
	id, err := validateSegment("id", id)
	if err != nil {
		return "", err
	}
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "image"
	}
	return category + CategorySeparator + base + CategorySeparator + id, nil
}

// ValidateCategory reports whether category can prefix an image name. Path characters and the
// separator are rejected so the prefix stays a single unambiguous segment.
func ValidateCategory(category string) error {
	category, err := validateSegment("category", category)
	if err != nil {
		return err
	}
	if strings.Contains(category, CategorySeparator) {
		return fmt.Errorf("storage: category must not contain %q", CategorySeparator)
	}
	return nil
}

// RetagName swaps the "<from>--" prefix of name for "<to>--". ok is false when name is not tagged with from.
func RetagName(name, from, to string) (string, bool) {
	rest, ok := strings.CutPrefix(name, from+CategorySeparator)
	if !ok {
		return "", false
	}
	return to + CategorySeparator + rest, true
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	return validateSegment("file name", value)
}
