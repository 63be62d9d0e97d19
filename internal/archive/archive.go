// Package archive packages a project directory into a tar.gz for upload.
// Ignore handling is deliberately coarse: rules match by substring (or by
// wildcard-expanded substring), not by full dockerignore semantics.
package archive

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hackerrun/hackerrun/internal/errdefs"
)

// envFileName is always shipped, whatever the ignore rules say. Runtime
// secrets live there and a deploy without them is broken in a confusing way.
const envFileName = ".env"

// defaultIgnores covers engine metadata, version control, logs, and OS
// droppings that never belong in a deployment archive.
var defaultIgnores = []string{".docker", ".git", "*.log", ".DS_Store"}

type rule struct {
	raw string
	re  *regexp.Regexp // set when the rule contains a wildcard
}

func (r rule) matches(path string) bool {
	if r.re != nil {
		return r.re.MatchString(path)
	}
	return strings.Contains(path, r.raw)
}

func compileRule(raw string) rule {
	if !strings.Contains(raw, "*") {
		return rule{raw: raw}
	}
	pattern := strings.ReplaceAll(regexp.QuoteMeta(raw), `\*`, ".*")
	return rule{raw: raw, re: regexp.MustCompile(pattern)}
}

// Build writes a tar.gz of sourceDir to outputPath. Rules from the ignore
// file at ignorePath (usually .dockerignore; may be empty or missing) extend
// the default ignore set. The output file excludes itself even when it sits
// inside sourceDir. A failed build may leave a truncated output file behind.
func Build(sourceDir, outputPath, ignorePath string) error {
	rules, err := loadRules(ignorePath)
	if err != nil {
		return &errdefs.ArchiveError{Err: err}
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return &errdefs.ArchiveError{Err: err}
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	outputName := filepath.Base(outputPath)
	absOutput, _ := filepath.Abs(outputPath)

	walkErr := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if abs, _ := filepath.Abs(path); abs == absOutput || filepath.Base(path) == outputName {
			return nil
		}
		if excluded(rel, rules) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		return err
	})
	if walkErr != nil {
		return &errdefs.ArchiveError{Err: walkErr}
	}
	if err := tw.Close(); err != nil {
		return &errdefs.ArchiveError{Err: err}
	}
	if err := gz.Close(); err != nil {
		return &errdefs.ArchiveError{Err: err}
	}
	if err := out.Close(); err != nil {
		return &errdefs.ArchiveError{Err: err}
	}
	return nil
}

func excluded(rel string, rules []rule) bool {
	if filepath.Base(rel) == envFileName {
		return false
	}
	for _, r := range rules {
		if r.matches(rel) {
			return true
		}
	}
	return false
}

func loadRules(ignorePath string) ([]rule, error) {
	raw := append([]string(nil), defaultIgnores...)
	if ignorePath != "" {
		f, err := os.Open(ignorePath)
		switch {
		case os.IsNotExist(err):
			// No ignore file is fine.
		case err != nil:
			return nil, fmt.Errorf("failed to read ignore file: %w", err)
		default:
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				raw = append(raw, line)
			}
			scanErr := scanner.Err()
			f.Close()
			if scanErr != nil {
				return nil, fmt.Errorf("failed to read ignore file: %w", scanErr)
			}
		}
	}

	rules := make([]rule, 0, len(raw))
	for _, r := range raw {
		if r == envFileName {
			continue
		}
		rules = append(rules, compileRule(r))
	}
	return rules, nil
}
