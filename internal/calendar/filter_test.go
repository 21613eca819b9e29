package calendar

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgiplan/surgery-scheduling/internal/surgery"
)

func TestFilter_ZeroValuePassesEverything(t *testing.T) {
	s := surgery.Surgery{
		ID:       uuid.New(),
		DoctorID: uuid.New(),
		Status:   surgery.StatusRequested,
	}

	assert.True(t, Filter{}.Matches(&s))
}

func TestFilter_DoctorMatchesPrimaryOrTeam(t *testing.T) {
	primary := uuid.New()
	assistant := uuid.New()
	outsider := uuid.New()

	s := surgery.Surgery{
		ID:       uuid.New(),
		DoctorID: primary,
		TeamIDs:  []uuid.UUID{assistant},
	}

	assert.True(t, Filter{DoctorID: primary}.Matches(&s))
	assert.True(t, Filter{DoctorID: assistant}.Matches(&s))
	assert.False(t, Filter{DoctorID: outsider}.Matches(&s))
}

func TestFilter_HospitalExcludesOthers(t *testing.T) {
	// A hospital filter alone must exclude every surgery at a different
	// hospital even when all other predicates are disabled.
	hospitalX := uuid.New()
	hospitalY := uuid.New()

	atX := surgery.Surgery{ID: uuid.New(), HospitalID: hospitalX}
	atY := surgery.Surgery{ID: uuid.New(), HospitalID: hospitalY}

	got := Filter{HospitalID: hospitalX}.Apply([]surgery.Surgery{atX, atY})

	require.Len(t, got, 1)
	assert.Equal(t, atX.ID, got[0].ID)
}

func TestFilter_Conjunctive(t *testing.T) {
	// A compound filter passes exactly when each predicate passes on its
	// own, checked over randomized surgeries and filter combinations.
	rng := rand.New(rand.NewSource(7))

	doctors := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	hospitals := []uuid.UUID{uuid.New(), uuid.New()}
	plans := []uuid.UUID{uuid.New(), uuid.New()}
	statuses := []surgery.Status{surgery.StatusRequested, surgery.StatusScheduled, surgery.StatusCompleted, surgery.StatusCancelled}
	authStatuses := []surgery.AuthStatus{surgery.AuthPending, surgery.AuthApproved, surgery.AuthDenied}

	pick := func(n int) int { return rng.Intn(n) }

	for i := 0; i < 500; i++ {
		s := surgery.Surgery{
			ID:          uuid.New(),
			DoctorID:    doctors[pick(len(doctors))],
			HospitalID:  hospitals[pick(len(hospitals))],
			InsuranceID: plans[pick(len(plans))],
			Status:      statuses[pick(len(statuses))],
			AuthStatus:  authStatuses[pick(len(authStatuses))],
		}
		if pick(2) == 0 {
			s.TeamIDs = []uuid.UUID{doctors[pick(len(doctors))]}
		}

		var f Filter
		if pick(2) == 0 {
			f.DoctorID = doctors[pick(len(doctors))]
		}
		if pick(2) == 0 {
			f.HospitalID = hospitals[pick(len(hospitals))]
		}
		if pick(2) == 0 {
			f.InsuranceID = plans[pick(len(plans))]
		}
		if pick(2) == 0 {
			f.Status = statuses[pick(len(statuses))]
		}
		if pick(2) == 0 {
			f.AuthStatus = authStatuses[pick(len(authStatuses))]
		}

		individual := Filter{DoctorID: f.DoctorID}.Matches(&s) &&
			Filter{HospitalID: f.HospitalID}.Matches(&s) &&
			Filter{InsuranceID: f.InsuranceID}.Matches(&s) &&
			Filter{Status: f.Status}.Matches(&s) &&
			Filter{AuthStatus: f.AuthStatus}.Matches(&s)

		assert.Equal(t, individual, f.Matches(&s),
			"compound filter %+v disagrees with its predicates on %+v", f, s)
	}
}

func TestFilter_ApplyPreservesOrder(t *testing.T) {
	hospital := uuid.New()
	surgeries := []surgery.Surgery{
		{ID: uuid.New(), HospitalID: hospital},
		{ID: uuid.New(), HospitalID: uuid.New()},
		{ID: uuid.New(), HospitalID: hospital},
	}

	got := Filter{HospitalID: hospital}.Apply(surgeries)

	require.Len(t, got, 2)
	assert.Equal(t, surgeries[0].ID, got[0].ID)
	assert.Equal(t, surgeries[2].ID, got[1].ID)
}
