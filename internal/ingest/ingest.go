// Package ingest reads Q&A source files from the data directory.
//
// Each *.json file maps a category name to {"questions": [{"question", "answer", "url"}]}.
// Categories are read in file order, and a question seen in an earlier file or
// category is skipped.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"qarag/internal/domain"
	"qarag/internal/log"
)

// SkippedFile records a source file that could not be read.
type SkippedFile struct {
	File string
	Err  error
}

// Report summarises one LoadDir run.
type Report struct {
	Files      int
	Items      int
	Duplicates int
	Incomplete int
	Skipped    []SkippedFile
}

type record struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	URL      string `json:"url"`
}

type category struct {
	Questions []record `json:"questions"`
}

// LoadDir returns every unique Q&A item found in dir. The directory is
// created when missing. ErrNoData is returned when dir holds no JSON files.
func LoadDir(dir string) ([]domain.QAItem, Report, error) {
	var rep Report
	logger := log.WithComponent("ingest")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, rep, fmt.Errorf("create data dir: %w", err)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, rep, err
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, rep, fmt.Errorf("no JSON files in %s: %w", dir, domain.ErrNoData)
	}

	seen := make(map[string]struct{})
	var items []domain.QAItem
	for _, path := range files {
		name := filepath.Base(path)
		logger.Info().Str("event", "build.file").Str("file", name).Msg("processing file")

		fileItems, err := readFile(path)
		if err != nil {
			logger.Warn().Err(err).Str("event", "build.file_skipped").Str("file", name).Msg("skipping file")
			rep.Skipped = append(rep.Skipped, SkippedFile{File: name, Err: err})
			continue
		}
		rep.Files++
		for _, it := range fileItems {
			q := strings.TrimSpace(it.Question)
			a := CleanAnswer(it.Answer)
			if q == "" || a == "" {
				rep.Incomplete++
				continue
			}
			key := strings.ToLower(q)
			if _, dup := seen[key]; dup {
				rep.Duplicates++
				continue
			}
			seen[key] = struct{}{}
			src := strings.TrimSpace(it.URL)
			if src == "" {
				src = name
			}
			items = append(items, domain.QAItem{
				Question: q,
				Answer:   a,
				Source:   src,
				Category: it.Category,
				File:     name,
			})
		}
	}
	rep.Items = len(items)
	return items, rep, nil
}

type fileItem struct {
	record
	Category string
}

// readFile decodes a source file with a token stream so categories keep
// their on-disk order.
func readFile(path string) ([]fileItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("decode: top level is not an object")
	}

	var out []fileItem
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		name, _ := tok.(string)
		var cat category
		if err := dec.Decode(&cat); err != nil {
			return nil, fmt.Errorf("decode category %q: %w", name, err)
		}
		for _, r := range cat.Questions {
			out = append(out, fileItem{record: r, Category: name})
		}
	}
	tok, err = dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '}' {
		return nil, errors.New("decode: unterminated object")
	}
	return out, nil
}

const blockElements = "p, br, div, li, tr, td, h1, h2, h3, h4, h5, h6, blockquote"

// CleanAnswer strips HTML markup when present and collapses whitespace.
func CleanAnswer(s string) string {
	if strings.ContainsRune(s, '<') {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			doc.Find("script, style").Remove()
			// keep words in adjacent blocks apart
			doc.Find(blockElements).BeforeHtml(" ")
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}
