package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// FoldString lowers `s` and strips diacritics ("Cálculo" -> "calculo") so that
// search and suggestion lookups are case- and accent-insensitive.
func FoldString(s string) string {
	folded, _, err := transform.String(foldTransformer, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return folded
}

// Getwd walks up from the working directory to the project root "backend".
// `go test` runs each package from its own directory, which breaks paths
// resolved relative to the root (.env lookups in particular).
// see: https://stackoverflow.com/questions/23847003/golang-tests-and-working-directory
func Getwd() string {
	root := "backend"
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(currDir); err == nil {
			dirBase := filepath.Base(currDir)
			if dirBase == root && fi.IsDir() {
				return currDir
			}
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
