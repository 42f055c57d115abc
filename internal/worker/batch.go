package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/virasat/internal/model"
)

// Verifier produces a terminal verdict for an image locator
type Verifier interface {
	VerifyLocator(ctx context.Context, locator string) model.VerificationVerdict
}

// VerifyJob verifies one photo
type VerifyJob struct {
	Locator  string
	Verifier Verifier
}

// Execute runs the verification. A cancelled context yields an error result
// instead of a verdict so callers can tell skipped photos apart.
func (j *VerifyJob) Execute(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return &VerifyResult{Locator: j.Locator, Error: err}
	}
	return &VerifyResult{
		Locator: j.Locator,
		Verdict: j.Verifier.VerifyLocator(ctx, j.Locator),
	}
}

// VerifyResult is the outcome of one VerifyJob
type VerifyResult struct {
	Locator string                    `json:"locator"`
	Verdict model.VerificationVerdict `json:"verdict"`
	Error   error                     `json:"-"`
}

// GetError returns the error from the result
func (r *VerifyResult) GetError() error {
	return r.Error
}

// BatchProcessor pre-screens many photos concurrently. It never claims.
type BatchProcessor struct {
	verifier    Verifier
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(verifier Verifier, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		verifier:    verifier,
		concurrency: concurrency,
	}
}

// ProcessLocators verifies every locator; results are sorted by locator
func (b *BatchProcessor) ProcessLocators(ctx context.Context, locators []string) []*VerifyResult {
	if len(locators) == 0 {
		return []*VerifyResult{}
	}

	jobs := make([]Job, 0, len(locators))
	for _, loc := range locators {
		jobs = append(jobs, &VerifyJob{Locator: loc, Verifier: b.verifier})
	}

	results := Run(ctx, b.concurrency, jobs)

	out := make([]*VerifyResult, 0, len(results))
	for _, r := range results {
		out = append(out, r.(*VerifyResult))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Locator < out[j].Locator })

	return out
}

// ProcessPath verifies a directory of photos or a list file of locators
func (b *BatchProcessor) ProcessPath(ctx context.Context, path string) ([]*VerifyResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var locators []string
	if info.IsDir() {
		locators, err = ListImages(path)
	} else {
		locators, err = ReadLocatorsFromFile(path)
	}
	if err != nil {
		return nil, err
	}

	return b.ProcessLocators(ctx, locators), nil
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".heic": true, ".gif": true,
}

// ListImages returns the photos directly inside dir
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}

// ReadLocatorsFromFile reads locators from a file (one per line)
func ReadLocatorsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var locators []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			locators = append(locators, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return locators, nil
}
