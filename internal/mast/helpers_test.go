package mast

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/batch-mast/orchestrator/internal/batch"
	"github.com/batch-mast/orchestrator/internal/dataset"
	"github.com/batch-mast/orchestrator/internal/ledger"
)

// fakeClient scripts per-job status sequences; the last status repeats.
type fakeClient struct {
	mu        sync.Mutex
	statuses  map[string][]batch.Status
	describes map[string]int
	submitted []batch.SubmitInput
	submitErr error
	nextID    int
	// autoStatus is assigned to jobs created by SubmitJob.
	autoStatus []batch.Status
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		statuses:   make(map[string][]batch.Status),
		describes:  make(map[string]int),
		autoStatus: []batch.Status{batch.StatusSucceeded},
	}
}

func (c *fakeClient) SubmitJob(ctx context.Context, in batch.SubmitInput) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitErr != nil {
		return "", c.submitErr
	}
	c.nextID++
	id := fmt.Sprintf("job-%d", c.nextID)
	c.submitted = append(c.submitted, in)
	c.statuses[id] = c.autoStatus
	return id, nil
}

func (c *fakeClient) DescribeJob(ctx context.Context, jobID string) (batch.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq, ok := c.statuses[jobID]
	if !ok {
		return "", fmt.Errorf("job %s not known", jobID)
	}
	i := c.describes[jobID]
	c.describes[jobID]++
	if i >= len(seq) {
		i = len(seq) - 1
	}
	return seq[i], nil
}

// fakeStore is an in-memory blob store. When outCSV is set, any Get of a key
// ending in "/out.csv" is served from it, so tests need not predict the
// uuid-random workspace.
type fakeStore struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	outCSV []byte
	getErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: make(map[string][]byte)}
}

func (s *fakeStore) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (s *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.outCSV != nil && strings.HasSuffix(key, "/out.csv") {
		return s.outCSV, nil
	}
	data, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("key %s not staged", key)
	}
	return data, nil
}

func (s *fakeStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.blobs))
	for k := range s.blobs {
		out = append(out, k)
	}
	return out
}

const sampleOutCSV = `,condition_coef,condition_fdr
GeneA,1.2,0.001
GeneB,0.1,0.9
`

func newTestRunner(store *fakeStore, client *fakeClient, led *ledger.Ledger) *Runner {
	return New(Config{
		JobQueue:      "mast-queue",
		JobDefinition: "mast-worker",
		Bucket:        "scratch",
		PollInterval:  2 * time.Millisecond,
		StatusWait:    time.Millisecond,
	}, store, client, led)
}

// sampleDataset has two condition groups of 3 cells each under tissue=liver
// and two underpowered singleton groups under tissue=lung. age has two
// levels, batch only one.
func sampleDataset() *dataset.Dataset {
	return &dataset.Dataset{
		Cells: []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7", "c8"},
		Genes: []string{"g1", "g2"},
		Counts: [][]float64{
			{1, 0}, {2, 1}, {0, 3}, {4, 0},
			{1, 1}, {0, 2}, {3, 0}, {1, 2},
		},
		Obs: map[string][]string{
			"condition": {"A", "A", "A", "B", "B", "B", "A", "B"},
			"tissue":    {"liver", "liver", "liver", "liver", "liver", "liver", "lung", "lung"},
			"age":       {"young", "old", "young", "old", "young", "old", "young", "old"},
			"batch":     {"b1", "b1", "b1", "b1", "b1", "b1", "b1", "b1"},
		},
	}
}
