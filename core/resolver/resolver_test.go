package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunesync/core/source"
	"tunesync/model"
)

// fakeAdapter is a scripted source adapter that records call order.
type fakeAdapter struct {
	name       string
	candidates []model.StreamCandidate
	err        error
	calls      *[]string
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Search(ctx context.Context, track model.Track) ([]model.StreamCandidate, error) {
	if f.calls != nil {
		*f.calls = append(*f.calls, f.name)
	}
	return f.candidates, f.err
}

func (f *fakeAdapter) Poll(ctx context.Context, jobID string) (*model.StreamCandidate, error) {
	return nil, source.ErrUnknownJob
}

var testTrack = model.Track{ID: "t1", Title: "Midnight City", Artist: "M83"}

func ready(name string) model.StreamCandidate {
	return model.StreamCandidate{
		SourceName: name,
		StreamURL:  "https://" + name + ".example/stream",
		Status:     model.StatusReady,
		FileName:   "01 Midnight City.flac",
	}
}

func TestResolveFallbackOrder(t *testing.T) {
	var calls []string
	a := &fakeAdapter{name: "a", err: errors.New("boom"), calls: &calls}
	b := &fakeAdapter{name: "b", candidates: []model.StreamCandidate{ready("b")}, calls: &calls}

	r := New(Config{Order: []string{"a", "b"}}, a, b)
	res, err := r.Resolve(context.Background(), testTrack)
	require.NoError(t, err)
	assert.Equal(t, "b", res.Candidate.SourceName)
	assert.Equal(t, []string{"a", "b"}, calls, "a must be attempted before b")
}

func TestResolveFirstAcceptableWins(t *testing.T) {
	var calls []string
	a := &fakeAdapter{name: "a", candidates: []model.StreamCandidate{ready("a")}, calls: &calls}
	b := &fakeAdapter{name: "b", candidates: []model.StreamCandidate{ready("b")}, calls: &calls}

	r := New(Config{Order: []string{"a", "b"}}, a, b)
	res, err := r.Resolve(context.Background(), testTrack)
	require.NoError(t, err)
	assert.Equal(t, "a", res.Candidate.SourceName)
	assert.Equal(t, []string{"a"}, calls, "b must not be queried once a matched")
}

func TestResolveRejectsMismatchedFilename(t *testing.T) {
	wrong := ready("a")
	wrong.FileName = "02 Reunion.flac"
	a := &fakeAdapter{name: "a", candidates: []model.StreamCandidate{wrong}}
	b := &fakeAdapter{name: "b", candidates: []model.StreamCandidate{ready("b")}}

	r := New(Config{Order: []string{"a", "b"}}, a, b)
	res, err := r.Resolve(context.Background(), testTrack)
	require.NoError(t, err)
	assert.Equal(t, "b", res.Candidate.SourceName)
}

func TestResolvePendingReturnedForPolling(t *testing.T) {
	queued := model.StreamCandidate{
		SourceName: "a",
		Status:     model.StatusQueued,
		JobID:      "magnet1/file1",
		FileName:   "01 Midnight City.flac",
	}
	var calls []string
	a := &fakeAdapter{name: "a", candidates: []model.StreamCandidate{queued}, calls: &calls}
	b := &fakeAdapter{name: "b", candidates: []model.StreamCandidate{ready("b")}, calls: &calls}

	r := New(Config{Order: []string{"a", "b"}}, a, b)
	res, err := r.Resolve(context.Background(), testTrack)
	require.NoError(t, err)
	assert.True(t, res.Pending())
	assert.Equal(t, "magnet1/file1", res.Candidate.JobID)
	assert.Equal(t, []string{"a"}, calls, "chain stops at the pending job by default")
}

func TestResolveParallelPendingPrefersLaterReady(t *testing.T) {
	queued := model.StreamCandidate{
		SourceName: "a",
		Status:     model.StatusQueued,
		JobID:      "magnet1/file1",
		FileName:   "01 Midnight City.flac",
	}
	a := &fakeAdapter{name: "a", candidates: []model.StreamCandidate{queued}}
	b := &fakeAdapter{name: "b", candidates: []model.StreamCandidate{ready("b")}}

	r := New(Config{Order: []string{"a", "b"}, AllowParallelPending: true}, a, b)
	res, err := r.Resolve(context.Background(), testTrack)
	require.NoError(t, err)
	assert.False(t, res.Pending())
	assert.Equal(t, "b", res.Candidate.SourceName)
}

func TestResolveInvalidCredentialsSurfaced(t *testing.T) {
	a := &fakeAdapter{name: "a", err: source.ErrInvalidCredentials}
	b := &fakeAdapter{name: "b", candidates: []model.StreamCandidate{ready("b")}}

	r := New(Config{Order: []string{"a", "b"}}, a, b)
	_, err := r.Resolve(context.Background(), testTrack)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResolveAllSourcesFailed(t *testing.T) {
	a := &fakeAdapter{name: "a", err: errors.New("down")}
	b := &fakeAdapter{name: "b", err: errors.New("also down")}

	r := New(Config{Order: []string{"a", "b"}}, a, b)
	_, err := r.Resolve(context.Background(), testTrack)
	assert.ErrorIs(t, err, ErrAllSourcesFailed)
}

func TestResolveNotFound(t *testing.T) {
	a := &fakeAdapter{name: "a"}
	b := &fakeAdapter{name: "b", err: errors.New("down")}

	r := New(Config{Order: []string{"a", "b"}}, a, b)
	_, err := r.Resolve(context.Background(), testTrack)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveDeadCandidatesSkipped(t *testing.T) {
	dead := ready("a")
	dead.Status = model.StatusDead
	a := &fakeAdapter{name: "a", candidates: []model.StreamCandidate{dead}}

	r := New(Config{Order: []string{"a"}}, a)
	_, err := r.Resolve(context.Background(), testTrack)
	assert.ErrorIs(t, err, ErrNotFound)
}
