// Package result holds per-host process results for each batch of a run.
package result

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnknownHost is returned when recording a host that is not in the batch.
	ErrUnknownHost = errors.New("host not part of batch")

	// ErrAlreadyRecorded is returned when a host result is recorded twice.
	ErrAlreadyRecorded = errors.New("host result already recorded")
)

// HostResult holds the outcome of one host's process.
type HostResult struct {
	// Host is the source host the process ran for.
	Host string

	// ReturnCode is nil until the process terminated.
	ReturnCode *int

	// Stdout is the captured standard output.
	Stdout []byte

	// Stderr is the captured standard error.
	Stderr []byte

	// TimedOut is set when the process was killed at its deadline.
	TimedOut bool

	// Duration is the wall time from launch to termination.
	Duration time.Duration
}

// Done reports whether the process terminated.
func (r *HostResult) Done() bool {
	return r.ReturnCode != nil
}

// Code returns the return code, or -1 if there is none.
func (r *HostResult) Code() int {
	if r.ReturnCode == nil {
		return -1
	}
	return *r.ReturnCode
}

// Failed reports whether the result counts as a host failure: no return
// code, a nonzero return code, or any error output.
func (r *HostResult) Failed() bool {
	return r.ReturnCode == nil || *r.ReturnCode != 0 || len(r.Stderr) > 0
}

// Batch holds the results of one namespace's batch.
type Batch struct {
	// Namespace is the operation kind the batch ran.
	Namespace string

	hosts    []string
	results  map[string]*HostResult
	recorded map[string]bool
}

// Hosts returns the batch hosts in launch order.
func (b *Batch) Hosts() []string {
	return append([]string(nil), b.hosts...)
}

// Get returns the result slot for host.
func (b *Batch) Get(host string) (*HostResult, bool) {
	r, ok := b.results[host]
	return r, ok
}

// Record stores the terminated result for host. Each host is recorded once.
func (b *Batch) Record(host string, r HostResult) error {
	if _, ok := b.results[host]; !ok {
		return fmt.Errorf("%s/%s: %w", b.Namespace, host, ErrUnknownHost)
	}
	if b.recorded[host] {
		return fmt.Errorf("%s/%s: %w", b.Namespace, host, ErrAlreadyRecorded)
	}
	r.Host = host
	b.results[host] = &r
	b.recorded[host] = true
	return nil
}

// Failed returns the hosts whose results are failures, sorted.
func (b *Batch) Failed() []string {
	var failed []string
	for h, r := range b.results {
		if r.Failed() {
			failed = append(failed, h)
		}
	}
	sort.Strings(failed)
	return failed
}

// Store maps namespaces to their latest batch.
type Store struct {
	batches map[string]*Batch
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{batches: make(map[string]*Batch)}
}

// Init creates an empty batch for namespace, replacing any previous one.
// Batches of other namespaces stay readable.
func (s *Store) Init(namespace string, hosts []string) *Batch {
	b := &Batch{
		Namespace: namespace,
		hosts:     append([]string(nil), hosts...),
		results:   make(map[string]*HostResult, len(hosts)),
		recorded:  make(map[string]bool, len(hosts)),
	}
	for _, h := range hosts {
		b.results[h] = &HostResult{Host: h}
	}
	s.batches[namespace] = b
	return b
}

// Batch returns the latest batch for namespace.
func (s *Store) Batch(namespace string) (*Batch, bool) {
	b, ok := s.batches[namespace]
	return b, ok
}

// Run is the state of one pipeline run, passed explicitly to every phase.
type Run struct {
	// ID identifies the run in console output and log files.
	ID string

	// Store holds the batch results.
	Store *Store

	errored bool
	reason  string
}

// NewRun creates a run with a fresh identifier and an empty store.
func NewRun() *Run {
	return &Run{
		ID:    uuid.NewString(),
		Store: NewStore(),
	}
}

// SetError sets the error flag. The flag is never cleared; the first
// reason is kept.
func (r *Run) SetError(reason string) {
	if r.errored {
		return
	}
	r.errored = true
	r.reason = reason
}

// Failed reports whether the error flag is set.
func (r *Run) Failed() bool {
	return r.errored
}

// Reason returns the reason the error flag was first set.
func (r *Run) Reason() string {
	return r.reason
}
