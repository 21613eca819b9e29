package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgiplan/surgery-scheduling/internal/surgery"
)

func newSurgery(name string) surgery.Surgery {
	return surgery.Surgery{
		ID:          uuid.New(),
		PatientName: name,
		DoctorID:    uuid.New(),
		Status:      surgery.StatusRequested,
		AuthStatus:  surgery.AuthPending,
	}
}

func TestApply_Insert(t *testing.T) {
	m := New()
	sg := newSurgery("Insert One")

	m.Apply(surgery.Delta{Op: surgery.OpInsert, ID: sg.ID, Surgery: &sg})

	require.Equal(t, 1, m.Len())
	got, ok := m.Get(sg.ID)
	require.True(t, ok)
	assert.Equal(t, "Insert One", got.PatientName)

	// Replayed insert for a known id is ignored.
	dup := sg
	dup.PatientName = "Changed"
	m.Apply(surgery.Delta{Op: surgery.OpInsert, ID: dup.ID, Surgery: &dup})

	assert.Equal(t, 1, m.Len())
	got, _ = m.Get(sg.ID)
	assert.Equal(t, "Insert One", got.PatientName)
}

func TestApply_Update(t *testing.T) {
	m := New()
	sg := newSurgery("Before")
	m.Apply(surgery.Delta{Op: surgery.OpInsert, ID: sg.ID, Surgery: &sg})

	edited := sg
	edited.PatientName = "After"
	m.Apply(surgery.Delta{Op: surgery.OpUpdate, ID: edited.ID, Surgery: &edited})

	assert.Equal(t, 1, m.Len())
	got, _ := m.Get(sg.ID)
	assert.Equal(t, "After", got.PatientName)
}

func TestApply_UpdateForUnknownIDInserts(t *testing.T) {
	m := New()
	sg := newSurgery("Missed Insert")

	m.Apply(surgery.Delta{Op: surgery.OpUpdate, ID: sg.ID, Surgery: &sg})

	assert.Equal(t, 1, m.Len())
	_, ok := m.Get(sg.ID)
	assert.True(t, ok)
}

func TestApply_Delete(t *testing.T) {
	m := New()
	a := newSurgery("Keep A")
	b := newSurgery("Remove B")
	c := newSurgery("Keep C")
	m.Load([]surgery.Surgery{a, b, c})

	m.Apply(surgery.Delta{Op: surgery.OpDelete, ID: b.ID})

	assert.Equal(t, 2, m.Len())
	_, ok := m.Get(b.ID)
	assert.False(t, ok)
	got, ok := m.Get(c.ID)
	require.True(t, ok, "index stays consistent after removal")
	assert.Equal(t, "Keep C", got.PatientName)

	// Deleting again is harmless.
	m.Apply(surgery.Delta{Op: surgery.OpDelete, ID: b.ID})
	assert.Equal(t, 2, m.Len())
}

func TestApply_NilSurgeryIgnored(t *testing.T) {
	m := New()

	m.Apply(surgery.Delta{Op: surgery.OpInsert, ID: uuid.New()})
	m.Apply(surgery.Delta{Op: surgery.OpUpdate, ID: uuid.New()})

	assert.Equal(t, 0, m.Len())
}

func TestLoad_Replaces(t *testing.T) {
	m := New()
	m.Load([]surgery.Surgery{newSurgery("Old")})

	fresh := newSurgery("New")
	m.Load([]surgery.Surgery{fresh})

	require.Equal(t, 1, m.Len())
	_, ok := m.Get(fresh.ID)
	assert.True(t, ok)
}

func TestSnapshot_Isolated(t *testing.T) {
	m := New()
	sg := newSurgery("Stable")
	sg.TeamIDs = []uuid.UUID{uuid.New()}
	sg.Fees = map[uuid.UUID]float64{sg.DoctorID: 1000}
	m.Load([]surgery.Surgery{sg})

	snap := m.Snapshot()
	snap[0].PatientName = "Scribbled"
	snap[0].Fees[sg.DoctorID] = 9999
	snap[0].TeamIDs[0] = uuid.Nil

	got, _ := m.Get(sg.ID)
	assert.Equal(t, "Stable", got.PatientName, "callers cannot mutate the mirror through a snapshot")
	assert.Equal(t, 1000.0, got.Fees[sg.DoctorID], "fee maps are not shared with snapshots")
	assert.NotEqual(t, uuid.Nil, got.TeamIDs[0], "team slices are not shared with snapshots")
}

func TestLoadAndApply_DetachFromCaller(t *testing.T) {
	m := New()
	sg := newSurgery("Loaded")
	sg.Fees = map[uuid.UUID]float64{sg.DoctorID: 500}
	m.Load([]surgery.Surgery{sg})

	// Caller keeps mutating its own copy after handing it over.
	sg.Fees[sg.DoctorID] = 1

	got, _ := m.Get(sg.ID)
	assert.Equal(t, 500.0, got.Fees[sg.DoctorID])

	other := newSurgery("Applied")
	other.Fees = map[uuid.UUID]float64{other.DoctorID: 700}
	m.Apply(surgery.Delta{Op: surgery.OpInsert, ID: other.ID, Surgery: &other})
	other.Fees[other.DoctorID] = 1

	got, _ = m.Get(other.ID)
	assert.Equal(t, 700.0, got.Fees[other.DoctorID])
}

func TestFollow(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payloads := make(chan []byte)
	done := make(chan struct{})
	go func() {
		m.Follow(ctx, payloads)
		close(done)
	}()

	sg := newSurgery("Via Feed")
	payload, err := surgery.EncodeDelta(surgery.Delta{
		Op: surgery.OpInsert, ID: sg.ID, Surgery: &sg,
	})
	require.NoError(t, err)

	payloads <- []byte("not json")
	payloads <- payload
	close(payloads)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Follow did not return after channel close")
	}

	assert.Equal(t, 1, m.Len(), "malformed payload skipped, valid one applied")
	_, ok := m.Get(sg.ID)
	assert.True(t, ok)
}
