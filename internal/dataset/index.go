package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/benchtools/benchwatch/pkg/models"
)

// indexRecord is one line of the dataset JSONL file. Only the fields the
// monitor needs are decoded; the rest of the record is ignored.
type indexRecord struct {
	QuestionID string `json:"question_id"`
	Difficulty string `json:"difficulty"`
}

// Index maps question IDs to difficulty tags. The underlying file is read
// at most once per process: the first caller performs the load and every
// concurrent caller blocks on the same load instead of re-reading.
type Index struct {
	path string

	once         sync.Once
	loadErr      error
	difficulties map[string]string
}

// New creates an index for the given dataset path. The file is not touched
// until Load or the first lookup.
func New(path string) *Index {
	return &Index{path: path}
}

// Load reads the dataset file. Safe for concurrent use; only the first
// call performs I/O. Returns an error if the file cannot be read, which
// callers that depend on scoring should treat as fatal.
func (ix *Index) Load() error {
	ix.once.Do(ix.load)
	return ix.loadErr
}

func (ix *Index) load() {
	ix.difficulties = make(map[string]string)

	f, err := os.Open(ix.path)
	if err != nil {
		ix.loadErr = fmt.Errorf("failed to open dataset: %w", err)
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// Dataset lines carry full question bodies and can be large.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec indexRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// Malformed lines are skipped; the file as a whole still loads.
			continue
		}
		if rec.QuestionID == "" {
			continue
		}
		difficulty := rec.Difficulty
		if difficulty == "" {
			difficulty = models.DifficultyUnknown
		}
		ix.difficulties[rec.QuestionID] = difficulty
	}

	if err := scanner.Err(); err != nil {
		ix.loadErr = fmt.Errorf("failed to read dataset: %w", err)
	}
}

// DifficultyOf returns the cached difficulty for a question, or "unknown"
// for IDs the dataset does not cover. Never fails: if the index could not
// be loaded every lookup answers "unknown".
func (ix *Index) DifficultyOf(questionID string) string {
	ix.once.Do(ix.load)
	if d, ok := ix.difficulties[questionID]; ok {
		return d
	}
	return models.DifficultyUnknown
}

// Len returns the number of indexed questions
func (ix *Index) Len() int {
	ix.once.Do(ix.load)
	return len(ix.difficulties)
}
