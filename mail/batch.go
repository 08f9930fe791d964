package mail

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

// StringList is a list of strings decoded from either a scalar or a sequence.
type StringList []string

// UnmarshalYAML accepts `a`, `[a, b]` and the block sequence form.
func (s *StringList) UnmarshalYAML(unmarshal func(any) error) error {
	var list []string
	if err := unmarshal(&list); err == nil {
		*s = list
		return nil
	}

	var one string
	if err := unmarshal(&one); err != nil {
		return errors.Wrap(err, "expected a string or a list of strings")
	}
	if one == "" {
		*s = nil
		return nil
	}
	*s = StringList{one}
	return nil
}

// Header joins the values the way a single header line carries them.
func (s StringList) Header() string {
	return strings.Join(s, ", ")
}

// Batch is an ordered mapping from label to Job.
type Batch struct {
	labels []string
	jobs   map[string]Job
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{jobs: make(map[string]Job)}
}

// Add inserts job under label. Re-adding a label replaces the job
// and keeps its original position.
func (b *Batch) Add(label string, job Job) *Batch {
	if b.jobs == nil {
		b.jobs = make(map[string]Job)
	}
	if _, ok := b.jobs[label]; !ok {
		b.labels = append(b.labels, label)
	}
	b.jobs[label] = job
	return b
}

// Get returns the job stored under label.
func (b *Batch) Get(label string) (Job, bool) {
	if b == nil {
		return Job{}, false
	}
	job, ok := b.jobs[label]
	return job, ok
}

// Len returns the number of jobs.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.labels)
}

// Labels returns labels in insertion order.
func (b *Batch) Labels() []string {
	if b == nil {
		return nil
	}
	return append([]string(nil), b.labels...)
}

// All iterates jobs in insertion order.
func (b *Batch) All() iter.Seq2[string, Job] {
	return func(yield func(string, Job) bool) {
		if b == nil {
			return
		}
		for _, label := range b.labels {
			if !yield(label, b.jobs[label]) {
				return
			}
		}
	}
}

// LoadBatch decodes a YAML (or JSON) mapping of label to job.
// Document key order becomes send order.
func LoadBatch(r io.Reader) (*Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read batch")
	}

	batch := NewBatch()
	if len(bytes.TrimSpace(data)) == 0 {
		return batch, nil
	}

	var items yaml.MapSlice
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrap(err, "failed to decode batch")
	}

	for _, item := range items {
		label := labelOf(item.Key)

		job, err := decodeJob(item.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode job %s", label)
		}
		batch.Add(label, job)
	}

	return batch, nil
}

// decodeJob re-encodes one mapping value and decodes it as a Job.
func decodeJob(value any) (Job, error) {
	raw, err := yaml.Marshal(value)
	if err != nil {
		return Job{}, err
	}

	var job Job
	if err := yaml.Unmarshal(raw, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// labelOf renders a mapping key as written. Bare dates may decode as time.Time.
func labelOf(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case time.Time:
		if k.Equal(k.Truncate(24 * time.Hour)) {
			return k.Format(time.DateOnly)
		}
		return k.Format(time.RFC3339)
	default:
		return fmt.Sprint(k)
	}
}

// LoadBatchFile decodes the batch stored at path.
func LoadBatchFile(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open batch file %s", path)
	}
	defer f.Close()

	return LoadBatch(f)
}
