package checkpoint

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ahrav/go-recall/internal/domain"
)

// maxLineSize bounds one record; hypotheses can be long.
const maxLineSize = 16 << 20

var errNotCheckpoint = errors.New("not a checkpoint artifact name")

// Artifact is one checkpoint file read back from disk.
type Artifact struct {
	Path    string
	Label   domain.CheckpointLabel
	Results []domain.ItemResult
}

// kindPrefixes are ordered longest first so "error_batch" is not
// mistaken for "batch".
var kindPrefixes = []domain.CheckpointKind{
	domain.CheckpointInterrupt,
	domain.CheckpointErrorBatch,
	domain.CheckpointBatch,
}

// ParseName recovers the label encoded in an artifact file name, ignoring
// any collision suffix.
func ParseName(name string) (domain.CheckpointLabel, error) {
	base, ok := strings.CutSuffix(filepath.Base(name), Extension)
	if !ok {
		return domain.CheckpointLabel{}, fmt.Errorf("%w: %s", errNotCheckpoint, name)
	}

	for _, kind := range kindPrefixes {
		rest, ok := strings.CutPrefix(base, string(kind)+"_")
		if !ok {
			continue
		}
		// n, size, offset, date, time[, suffix]
		fields := strings.Split(rest, "_")
		if len(fields) < 5 {
			break
		}
		nums := make([]int, 3)
		for i := range nums {
			n, err := strconv.Atoi(fields[i])
			if err != nil {
				return domain.CheckpointLabel{}, fmt.Errorf("%w: %s", errNotCheckpoint, name)
			}
			nums[i] = n
		}
		at, err := time.ParseInLocation(domain.CheckpointTimeLayout, fields[3]+"_"+fields[4], time.Local)
		if err != nil {
			return domain.CheckpointLabel{}, fmt.Errorf("%w: %s", errNotCheckpoint, name)
		}
		return domain.CheckpointLabel{
			Kind:        kind,
			BatchNumber: nums[0],
			BatchSize:   nums[1],
			Offset:      nums[2],
			Time:        at,
		}, nil
	}
	return domain.CheckpointLabel{}, fmt.Errorf("%w: %s", errNotCheckpoint, name)
}

// ReadFile decodes one artifact.
func ReadFile(path string) ([]domain.ItemResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var results []domain.ItemResult
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		if len(strings.TrimSpace(sc.Text())) == 0 {
			continue
		}
		var r domain.ItemResult
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		results = append(results, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return results, nil
}

// ScanArtifacts reads every checkpoint artifact in dir, sorted by name.
// Other files, including in-progress temp files, are skipped. A missing
// directory yields no artifacts.
func ScanArtifacts(dir string) ([]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []Artifact
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		label, err := ParseName(e.Name())
		if err != nil {
			continue
		}
		path := filepath.Join(dir, e.Name())
		results, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, Artifact{Path: path, Label: label, Results: results})
	}
	return out, nil
}

// Scan returns the results of every artifact in dir.
func Scan(dir string) ([]domain.ItemResult, error) {
	artifacts, err := ScanArtifacts(dir)
	if err != nil {
		return nil, err
	}
	var out []domain.ItemResult
	for _, a := range artifacts {
		out = append(out, a.Results...)
	}
	return out, nil
}

// NextOffset returns the first idx, counting up from 0, that no result
// covers: the highest contiguous idx plus one. Results with an empty
// hypothesis count as attempted.
func NextOffset(results []domain.ItemResult) int {
	seen := make(map[int]struct{}, len(results))
	for _, r := range results {
		seen[r.Idx] = struct{}{}
	}
	next := 0
	for {
		if _, ok := seen[next]; !ok {
			return next
		}
		next++
	}
}
