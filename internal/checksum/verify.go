package checksum

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eugenetaranov/hoard/internal/layout"
	"github.com/eugenetaranov/hoard/internal/result"
)

// ErrListingUnavailable is returned when a host's checksum process failed.
var ErrListingUnavailable = errors.New("hash listing unavailable")

// ErrMismatch marks a report that found a differing file.
var ErrMismatch = errors.New("checksum mismatch")

// Mismatch describes one file whose local copy differs from the remote.
type Mismatch struct {
	Host       string
	Path       string
	RemoteHash string
	LocalHash  string

	// Err is set when the local file could not be hashed.
	Err error
}

// Report is the verification outcome for one host.
type Report struct {
	Host string

	// Checked counts files whose hashes matched.
	Checked int

	// Mismatch is the first differing file, if any.
	Mismatch *Mismatch

	// Err is the reason verification failed, nil on success.
	Err error
}

// Passed reports whether the host verified cleanly.
func (r *Report) Passed() bool {
	return r.Err == nil
}

// Verifier compares remote hash listings with the local archive tree.
type Verifier struct {
	layout *layout.Builder
	alg    Algorithm
}

// NewVerifier creates a verifier reading archived files through b.
func NewVerifier(b *layout.Builder, alg Algorithm) *Verifier {
	return &Verifier{layout: b, alg: alg}
}

// VerifyBatch checks every host of a remote checksum batch by hashing the
// archived copies in-process.
func (v *Verifier) VerifyBatch(remote *result.Batch) []*Report {
	reports := make([]*Report, 0, len(remote.Hosts()))
	for _, host := range remote.Hosts() {
		listing, err := listingFor(remote, host)
		if err != nil {
			reports = append(reports, &Report{Host: host, Err: err})
			continue
		}
		reports = append(reports, v.VerifyHost(host, listing))
	}
	return reports
}

// VerifyHost hashes the local copy of every listed file and stops at the
// first mismatch.
func (v *Verifier) VerifyHost(host string, listing Listing) *Report {
	report := &Report{Host: host}

	if len(listing) == 0 {
		report.Err = ErrEmptyListing
		return report
	}

	for _, path := range listing.Paths() {
		want := listing[path]

		local, err := v.layout.LocalFile(host, path)
		if err != nil {
			report.Mismatch = &Mismatch{Host: host, Path: path, RemoteHash: want, Err: err}
			report.Err = fmt.Errorf("%s: %w", path, err)
			return report
		}

		got, err := HashFile(v.layout.Fs(), local, v.alg)
		if err != nil {
			report.Mismatch = &Mismatch{Host: host, Path: path, RemoteHash: want, Err: err}
			report.Err = fmt.Errorf("%s: %w: %v", path, ErrMismatch, err)
			return report
		}

		if got != want {
			report.Mismatch = &Mismatch{Host: host, Path: path, RemoteHash: want, LocalHash: got}
			report.Err = fmt.Errorf("%s: %w", path, ErrMismatch)
			return report
		}

		report.Checked++
	}

	return report
}

// CompareBatches checks every host of a remote checksum batch against a
// local checksum batch produced by the external hash tool.
func (v *Verifier) CompareBatches(remote, local *result.Batch) []*Report {
	reports := make([]*Report, 0, len(remote.Hosts()))
	for _, host := range remote.Hosts() {
		remoteListing, err := listingFor(remote, host)
		if err != nil {
			reports = append(reports, &Report{Host: host, Err: err})
			continue
		}
		localListing, err := listingFor(local, host)
		if err != nil && !errors.Is(err, ErrEmptyListing) {
			reports = append(reports, &Report{Host: host, Err: fmt.Errorf("local: %w", err)})
			continue
		}
		reports = append(reports, v.CompareHost(host, remoteListing, localListing))
	}
	return reports
}

// CompareHost matches a remote listing against a local listing whose paths
// are archive-tree paths.
func (v *Verifier) CompareHost(host string, remote, local Listing) *Report {
	report := &Report{Host: host}

	if len(remote) == 0 {
		report.Err = ErrEmptyListing
		return report
	}

	byRemotePath := make(Listing, len(local))
	for path, sum := range local {
		rp, err := v.layout.RemoteFile(host, path)
		if err != nil {
			continue
		}
		byRemotePath[rp] = sum
	}

	for _, path := range remote.Paths() {
		want := remote[path]
		got, ok := byRemotePath["/"+strings.TrimPrefix(path, "/")]
		if !ok {
			report.Mismatch = &Mismatch{Host: host, Path: path, RemoteHash: want, Err: errors.New("missing from local archive")}
			report.Err = fmt.Errorf("%s: %w: missing locally", path, ErrMismatch)
			return report
		}
		if got != want {
			report.Mismatch = &Mismatch{Host: host, Path: path, RemoteHash: want, LocalHash: got}
			report.Err = fmt.Errorf("%s: %w", path, ErrMismatch)
			return report
		}
		report.Checked++
	}

	return report
}

// listingFor parses the listing a host produced in batch.
func listingFor(batch *result.Batch, host string) (Listing, error) {
	if batch == nil {
		return nil, ErrListingUnavailable
	}
	r, ok := batch.Get(host)
	if !ok || r.Failed() {
		return nil, fmt.Errorf("%w: %s exited %d", ErrListingUnavailable, batch.Namespace, codeOf(r))
	}
	listing, err := ParseListing(r.Stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListingUnavailable, err)
	}
	if len(listing) == 0 {
		return nil, ErrEmptyListing
	}
	return listing, nil
}

func codeOf(r *result.HostResult) int {
	if r == nil {
		return -1
	}
	return r.Code()
}

// Failed returns the reports that did not pass.
func Failed(reports []*Report) []*Report {
	var failed []*Report
	for _, r := range reports {
		if !r.Passed() {
			failed = append(failed, r)
		}
	}
	return failed
}
