// Command tagmerge merges heterogeneous JSON tag files into a single
// usertags.json, deduplicating users across files and tag texts within
// a user. The input files share a top-level {"records": [...]} shape but
// carry tags under several historical field layouts.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/just-h/yoinker-detector/pkg/logging"
)

var htmlTag = regexp.MustCompile(`<[^>]+>`)

// Output file names excluded from merging so reruns do not feed the
// merger its own output.
var generatedFiles = map[string]struct{}{
	"usertags.json":       {},
	"usertags2.json":      {},
	"usertags_new.json":   {},
	"usertags_final.json": {},
}

// tagFile is the common envelope of every input file.
type tagFile struct {
	Records []map[string]any `json:"records"`
}

// mergedRecord is one user's entry in the merged output.
type mergedRecord struct {
	ID              int64    `json:"id"`
	Active          bool     `json:"active"`
	Malicious       bool     `json:"malicious"`
	Tags            []string `json:"tags"`
	Tag             string   `json:"tag"`
	ForegroundColor string   `json:"foreground_color"`
	Sources         []string `json:"sources"`
}

type stats struct {
	FilesProcessed   int
	TotalRecords     int
	UniqueUsers      int
	DuplicatesMerged int
}

type merger struct {
	merged map[string]*mergedRecord
	stats  stats
	logger zerolog.Logger
}

func newMerger() *merger {
	return &merger{
		merged: make(map[string]*mergedRecord),
		logger: logging.NewLogger("tagmerge"),
	}
}

// userID extracts the user identifier, tolerating both historical field
// spellings.
func userID(record map[string]any) string {
	for _, key := range []string{"UserID", "UserId"} {
		if v, ok := record[key]; ok {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// extractTags collects every tag text a record carries, across all known
// layouts: Tag / NamePlatesText / BigPlatesText arrays, the numbered
// PlateText fields, and the single Text field.
func extractTags(record map[string]any) []string {
	var raw []string

	for _, key := range []string{"Tag", "NamePlatesText", "BigPlatesText"} {
		if arr, ok := record[key].([]any); ok {
			for _, v := range arr {
				if s, ok := v.(string); ok {
					raw = append(raw, s)
				}
			}
		}
	}
	for _, key := range []string{"PlateText", "PlateText2", "PlateText3", "PlateBigText", "Text"} {
		if s, ok := record[key].(string); ok && s != "" {
			raw = append(raw, s)
		}
	}

	tags := make([]string, 0, len(raw))
	for _, tag := range raw {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

// foregroundColor converts a [r, g, b] Color array to a hex string,
// defaulting to red.
func foregroundColor(record map[string]any) string {
	arr, ok := record["Color"].([]any)
	if !ok || len(arr) < 3 {
		return "#ff0000"
	}
	rgb := make([]int, 3)
	for i := 0; i < 3; i++ {
		f, ok := arr[i].(float64)
		if !ok {
			return "#ff0000"
		}
		rgb[i] = int(f) & 0xff
	}
	return fmt.Sprintf("#%02x%02x%02x", rgb[0], rgb[1], rgb[2])
}

// mainTag picks the first non-empty tag with HTML markup stripped.
func mainTag(tags []string) string {
	for _, tag := range tags {
		clean := strings.TrimSpace(htmlTag.ReplaceAllString(tag, ""))
		if clean != "" {
			return clean
		}
	}
	return "User"
}

func boolField(record map[string]any, key string, fallback bool) bool {
	if v, ok := record[key].(bool); ok {
		return v
	}
	return fallback
}

// mergeRecord folds one raw record into the merged set.
func (m *merger) mergeRecord(record map[string]any, source string) {
	id := userID(record)
	if id == "" {
		return
	}
	tags := extractTags(record)
	if len(tags) == 0 {
		return
	}
	m.stats.TotalRecords++

	existing, ok := m.merged[id]
	if !ok {
		var numericID int64
		if f, ok := record["id"].(float64); ok {
			numericID = int64(f)
		}
		m.merged[id] = &mergedRecord{
			ID:              numericID,
			Active:          boolField(record, "Active", true),
			Malicious:       boolField(record, "Malicious", false),
			Tags:            tags,
			Tag:             mainTag(tags),
			ForegroundColor: foregroundColor(record),
			Sources:         []string{source},
		}
		m.stats.UniqueUsers++
		return
	}

	// Same user seen again: union the tag texts and sources.
	seen := make(map[string]struct{}, len(existing.Tags))
	for _, tag := range existing.Tags {
		seen[tag] = struct{}{}
	}
	for _, tag := range tags {
		if _, dup := seen[tag]; !dup {
			existing.Tags = append(existing.Tags, tag)
			seen[tag] = struct{}{}
		}
	}

	hasSource := false
	for _, s := range existing.Sources {
		if s == source {
			hasSource = true
			break
		}
	}
	if !hasSource {
		existing.Sources = append(existing.Sources, source)
	}
	m.stats.DuplicatesMerged++
}

// processFile merges every record of one input file.
func (m *merger) processFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var file tagFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if len(file.Records) == 0 {
		m.logger.Warn().Str("file", filepath.Base(path)).Msg("No records found")
		return nil
	}

	m.logger.Info().
		Str("file", filepath.Base(path)).
		Int("records", len(file.Records)).
		Msg("Merging file")

	for _, record := range file.Records {
		m.mergeRecord(record, filepath.Base(path))
	}
	m.stats.FilesProcessed++
	return nil
}

// run merges all *.json files in inputDir into outputFile.
func (m *merger) run(inputDir, outputFile string) error {
	paths, err := filepath.Glob(filepath.Join(inputDir, "*.json"))
	if err != nil {
		return err
	}

	outputName := filepath.Base(outputFile)
	for _, path := range paths {
		name := filepath.Base(path)
		if _, skip := generatedFiles[name]; skip || name == outputName {
			continue
		}
		if err := m.processFile(path); err != nil {
			// A bad input file is skipped, not fatal.
			m.logger.Error().Err(err).Msg("Skipping file")
		}
	}

	data, err := json.MarshalIndent(m.merged, "", "  ")
	if err != nil {
		return fmt.Errorf("encode merged data: %w", err)
	}
	if err := os.WriteFile(outputFile, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outputFile, err)
	}

	m.logger.Info().
		Int("files", m.stats.FilesProcessed).
		Int("records", m.stats.TotalRecords).
		Int("unique_users", m.stats.UniqueUsers).
		Int("duplicates_merged", m.stats.DuplicatesMerged).
		Str("output", outputFile).
		Msg("Merge complete")

	return nil
}

func main() {
	var (
		inputDir   string
		outputFile string
		logLevel   string
	)
	flag.StringVar(&inputDir, "i", ".", "directory containing JSON tag files")
	flag.StringVar(&inputDir, "input", ".", "directory containing JSON tag files")
	flag.StringVar(&outputFile, "o", "usertags.json", "merged output file")
	flag.StringVar(&outputFile, "output", "usertags.json", "merged output file")
	flag.StringVar(&logLevel, "log-level", "info", "log level")
	flag.Parse()

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(logLevel),
		Pretty: true,
		Output: os.Stderr,
	})

	if err := newMerger().run(inputDir, outputFile); err != nil {
		log.Error().Err(err).Msg("Merge failed")
		os.Exit(1)
	}
}
