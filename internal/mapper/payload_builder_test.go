package mapper

import (
	"testing"

	"github.com/Guizzs26/go-user-sync/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestBuildWithConfiguredMappings(t *testing.T) {
	b := NewPayloadBuilder("firstname:first_name\nemail:email")

	user := &models.UserRecord{ID: 7, FirstName: "Ann", Email: "a@x.com"}
	payload := b.Build(user)

	assert.Equal(t, map[string]any{
		"first_name": "Ann",
		"email":      "a@x.com",
		"moodle_id":  int64(7),
	}, payload)
}

func TestBuildFallsBackToDefaultMappings(t *testing.T) {
	b := NewPayloadBuilder("   ")

	user := &models.UserRecord{
		ID:        3,
		Username:  "alee",
		Email:     "a@x.com",
		FirstName: "Ann",
		LastName:  "Lee",
		IDNumber:  "S-100",
	}
	payload := b.Build(user)

	assert.Equal(t, "Ann", payload["first_name"])
	assert.Equal(t, "Lee", payload["last_name"])
	assert.Equal(t, "a@x.com", payload["email"])
	assert.Equal(t, "S-100", payload["student_id"])
	assert.Equal(t, "alee", payload["username"])
	assert.Equal(t, int64(3), payload["moodle_id"])
}

func TestBuildSkipsAbsentFields(t *testing.T) {
	b := NewPayloadBuilder("firstname:first_name\ndepartment:dept")

	user := &models.UserRecord{ID: 9, FirstName: "Bo"}
	payload := b.Build(user)

	assert.Equal(t, "Bo", payload["first_name"])
	assert.NotContains(t, payload, "dept")
}

func TestBuildReadsProfileFields(t *testing.T) {
	b := NewPayloadBuilder("department:dept")

	user := &models.UserRecord{
		ID:      4,
		Profile: map[string]any{"department": "Physics"},
	}
	payload := b.Build(user)

	assert.Equal(t, "Physics", payload["dept"])
}

func TestBuildIgnoresMalformedLines(t *testing.T) {
	b := NewPayloadBuilder("firstname:first_name\nbroken-line\n:\n\nemail:email")

	user := &models.UserRecord{ID: 1, FirstName: "Ann", Email: "a@x.com"}
	payload := b.Build(user)

	assert.Len(t, payload, 3) // first_name, email, moodle_id
}

func TestBuildIdentifierNotOverwrittenWhenMapped(t *testing.T) {
	b := NewPayloadBuilder("idnumber:moodle_id")

	user := &models.UserRecord{ID: 5, IDNumber: "EXT-5"}
	payload := b.Build(user)

	assert.Equal(t, "EXT-5", payload["moodle_id"])
}
