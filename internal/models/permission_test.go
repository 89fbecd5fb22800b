package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilityTable(t *testing.T) {
	cases := []struct {
		role UserRole
		op   Operation
		want bool
	}{
		{RoleAdmin, OpSubjectDelete, true},
		{RoleTeacher, OpSubjectWrite, true},
		{RoleTeacher, OpSubjectDelete, false},
		{RoleStudent, OpSubjectWrite, false},
		{RoleParent, OpScheduleRead, true},
		{RoleTeacher, OpScheduleWrite, false},
		{RoleAdmin, OpTimetableActivate, true},
		{RoleStudent, OpTimetableMine, true},
		{RoleAdmin, OpTimetableMine, false},
		{UserRole("ghost"), OpSubjectRead, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Can(tc.role, tc.op), "%s %s", tc.role, tc.op)
	}
}

func TestClockTimeParsing(t *testing.T) {
	c, err := ParseClockTime("08:45")
	assert.NoError(t, err)
	assert.Equal(t, "08:45", c.String())
	assert.Equal(t, NewClockTime(8, 45), c)

	var scanned ClockTime
	assert.NoError(t, scanned.Scan([]byte("13:05:00")))
	assert.Equal(t, NewClockTime(13, 5), scanned)

	v, err := scanned.Value()
	assert.NoError(t, err)
	assert.Equal(t, "13:05:00", v)

	_, err = ParseClockTime("25:99")
	assert.Error(t, err)
}

func TestTimeSlotOverlaps(t *testing.T) {
	a := TimeSlot{StartTime: NewClockTime(8, 0), EndTime: NewClockTime(8, 40)}
	b := TimeSlot{StartTime: NewClockTime(8, 30), EndTime: NewClockTime(9, 10)}
	c := TimeSlot{StartTime: NewClockTime(8, 40), EndTime: NewClockTime(9, 20)}
	assert.True(t, a.Overlaps(b))
	assert.False(t, a.Overlaps(c))
}

func TestAccountProfileAccessors(t *testing.T) {
	account := &Account{User: User{ID: "u1", Role: RoleStudent}, Profile: NewProfileFor("u1", RoleStudent)}
	student, ok := account.StudentProfile()
	assert.True(t, ok)
	assert.Equal(t, AdmissionPending, student.Status)
	_, ok = account.TeacherProfile()
	assert.False(t, ok)
	assert.Nil(t, NewProfileFor("u1", UserRole("ghost")))
	assert.True(t, ClassJSS1.Valid())
	assert.False(t, AcademicClass("Grade 7").Valid())
	assert.Equal(t, 2, Wednesday.Index())
}
