package batch

import (
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/devops-ingest/internal/checkpoint"
	"github.com/kurihiro0119/devops-ingest/internal/domain"
)

type pair = Pair[domain.Project, domain.Team]

func pairs(items []pair, tail error) iter.Seq2[pair, error] {
	return func(yield func(pair, error) bool) {
		for _, p := range items {
			if !yield(p, nil) {
				return
			}
		}
		if tail != nil {
			yield(pair{}, tail)
		}
	}
}

func build(p domain.Project, teams []domain.Team) domain.EnrichedRecord {
	return domain.EnrichedRecord{Resource: domain.StageTeams, Project: p, Teams: teams}
}

func teamIDs(r domain.EnrichedRecord) []string {
	var ids []string
	for _, t := range r.Teams {
		ids = append(ids, t.ID)
	}
	return ids
}

func makePairs(kv ...string) []pair {
	// kv alternates project name and team id
	var out []pair
	for i := 0; i < len(kv); i += 2 {
		out = append(out, pair{
			Parent: domain.Project{Organization: "org", Name: kv[i]},
			Child:  domain.Team{ID: kv[i+1]},
		})
	}
	return out
}

func TestGroupWithinWindow(t *testing.T) {
	in := makePairs("A", "1", "B", "2", "A", "3", "C", "4", "B", "5")
	var got []domain.EnrichedRecord
	for r, err := range Group(pairs(in, nil), 10, build) {
		require.NoError(t, err)
		got = append(got, r)
	}

	require.Len(t, got, 3)
	assert.Equal(t, "A", got[0].Project.Name)
	assert.Equal(t, []string{"1", "3"}, teamIDs(got[0]))
	assert.Equal(t, "B", got[1].Project.Name)
	assert.Equal(t, []string{"2", "5"}, teamIDs(got[1]))
	assert.Equal(t, "C", got[2].Project.Name)
}

func TestGroupSplitsAcrossWindows(t *testing.T) {
	in := makePairs("A", "1", "A", "2", "A", "3", "A", "4", "A", "5", "A", "6", "A", "7")
	var got []domain.EnrichedRecord
	for r, err := range Group(pairs(in, nil), 5, build) {
		require.NoError(t, err)
		got = append(got, r)
	}

	require.Len(t, got, 2)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, teamIDs(got[0]))
	assert.Equal(t, []string{"6", "7"}, teamIDs(got[1]))
}

func TestGroupStructuralEquality(t *testing.T) {
	in := makePairs("A", "1", "A", "2")
	in[1].Parent.GitEnabled = true

	var got []domain.EnrichedRecord
	for r, err := range Group(pairs(in, nil), 5, build) {
		require.NoError(t, err)
		got = append(got, r)
	}
	assert.Len(t, got, 2, "parents differing in any field are distinct groups")
}

func TestGroupResumableFailureCarriesPartialWindow(t *testing.T) {
	failure := &checkpoint.ResumableFailure{Message: "boom"}
	in := makePairs("A", "1", "A", "2", "A", "3", "A", "4", "A", "5", "B", "6", "C", "7")

	var records []domain.EnrichedRecord
	var gotErr error
	for r, err := range Group(pairs(in, failure), 5, build) {
		if err != nil {
			gotErr = err
			continue
		}
		records = append(records, r)
	}

	require.ErrorIs(t, gotErr, failure)
	require.Len(t, records, 1, "only the full window is yielded")
	require.Len(t, failure.Partial, 2)
	assert.Equal(t, "B", failure.Partial[0].Project.Name)
	assert.Equal(t, "C", failure.Partial[1].Project.Name)
}

func TestGroupPlainErrorFlushesPartialWindow(t *testing.T) {
	boom := errors.New("boom")
	in := makePairs("A", "1", "B", "2")

	var records []domain.EnrichedRecord
	var gotErr error
	for r, err := range Group(pairs(in, boom), 5, build) {
		if err != nil {
			gotErr = err
			continue
		}
		records = append(records, r)
	}
	assert.ErrorIs(t, gotErr, boom)
	assert.Len(t, records, 2)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, MinWindow, Clamp(1))
	assert.Equal(t, 100, Clamp(100))
	assert.Equal(t, MaxWindow, Clamp(10000))
}
