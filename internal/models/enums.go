package models

// AcademicClass labels a student cohort.
type AcademicClass string

const (
	ClassNursery1 AcademicClass = "Nursery 1"
	ClassNursery2 AcademicClass = "Nursery 2"
	ClassPrep     AcademicClass = "Prep"
	ClassPrimary1 AcademicClass = "Primary 1"
	ClassPrimary2 AcademicClass = "Primary 2"
	ClassPrimary3 AcademicClass = "Primary 3"
	ClassPrimary4 AcademicClass = "Primary 4"
	ClassPrimary5 AcademicClass = "Primary 5"
	ClassPrimary6 AcademicClass = "Primary 6"
	ClassJSS1     AcademicClass = "JSS1"
	ClassJSS2     AcademicClass = "JSS2"
	ClassJSS3     AcademicClass = "JSS3"
	ClassSS1      AcademicClass = "SS1"
	ClassSS2      AcademicClass = "SS2"
	ClassSS3      AcademicClass = "SS3"
)

// AcademicClasses lists every class in progression order.
var AcademicClasses = []AcademicClass{
	ClassNursery1, ClassNursery2, ClassPrep,
	ClassPrimary1, ClassPrimary2, ClassPrimary3, ClassPrimary4, ClassPrimary5, ClassPrimary6,
	ClassJSS1, ClassJSS2, ClassJSS3,
	ClassSS1, ClassSS2, ClassSS3,
}

// Valid reports whether the class label is known.
func (c AcademicClass) Valid() bool {
	for _, known := range AcademicClasses {
		if c == known {
			return true
		}
	}
	return false
}

// DayOfWeek enumerates schedule days.
type DayOfWeek string

const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
	Sunday    DayOfWeek = "SUNDAY"
)

// DaysOfWeek lists the days in calendar order starting Monday.
var DaysOfWeek = []DayOfWeek{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// Valid reports whether the day is part of the enumeration.
func (d DayOfWeek) Valid() bool {
	return d.Index() >= 0
}

// Index returns the zero based weekday position or -1 when unknown.
func (d DayOfWeek) Index() int {
	for i, known := range DaysOfWeek {
		if d == known {
			return i
		}
	}
	return -1
}

// Gender of a student.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// AdmissionStatus tracks a student's admission review.
type AdmissionStatus string

const (
	AdmissionPending  AdmissionStatus = "pending"
	AdmissionApproved AdmissionStatus = "approved"
	AdmissionRejected AdmissionStatus = "rejected"
)
