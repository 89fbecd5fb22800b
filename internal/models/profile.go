package models

import "time"

// Profile is the role specific record attached to a user. Exactly one concrete
// profile type exists per role.
type Profile interface {
	ProfileRole() UserRole
	isProfile()
}

// AdminProfile holds administrator details.
type AdminProfile struct {
	UserID     string    `db:"user_id" json:"user_id"`
	Position   string    `db:"position" json:"position"`
	SchoolName string    `db:"school_name" json:"school_name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// TeacherProfile holds staff details.
type TeacherProfile struct {
	UserID         string    `db:"user_id" json:"user_id"`
	StaffID        string    `db:"staff_id" json:"staff_id"`
	Qualification  string    `db:"qualification" json:"qualification"`
	Specialization string    `db:"specialization" json:"specialization"`
	Department     string    `db:"department" json:"department"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// StudentProfile holds enrolment and admission details.
type StudentProfile struct {
	UserID        string          `db:"user_id" json:"user_id"`
	StudentID     string          `db:"student_id" json:"student_id"`
	Gender        *Gender         `db:"gender" json:"gender,omitempty"`
	CurrentClass  *AcademicClass  `db:"current_class" json:"current_class,omitempty"`
	AdmissionDate *time.Time      `db:"admission_date" json:"admission_date,omitempty"`
	GuardianName  string          `db:"guardian_name" json:"guardian_name"`
	GuardianPhone string          `db:"guardian_phone" json:"guardian_phone"`
	Address       string          `db:"address" json:"address"`
	Status        AdmissionStatus `db:"status" json:"status"`
	ApprovedBy    *string         `db:"approved_by" json:"approved_by,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// ParentProfile holds guardian details.
type ParentProfile struct {
	UserID      string    `db:"user_id" json:"user_id"`
	Occupation  string    `db:"occupation" json:"occupation"`
	Address     string    `db:"address" json:"address"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

func (*AdminProfile) ProfileRole() UserRole   { return RoleAdmin }
func (*TeacherProfile) ProfileRole() UserRole { return RoleTeacher }
func (*StudentProfile) ProfileRole() UserRole { return RoleStudent }
func (*ParentProfile) ProfileRole() UserRole  { return RoleParent }

func (*AdminProfile) isProfile()   {}
func (*TeacherProfile) isProfile() {}
func (*StudentProfile) isProfile() {}
func (*ParentProfile) isProfile()  {}

// Account is the user aggregate: the user row plus its optional profile.
type Account struct {
	User
	Profile Profile `json:"profile,omitempty"`
}

// StudentProfile returns the attached student profile, if any.
func (a *Account) StudentProfile() (*StudentProfile, bool) {
	if a == nil || a.Profile == nil {
		return nil, false
	}
	p, ok := a.Profile.(*StudentProfile)
	return p, ok
}

// TeacherProfile returns the attached teacher profile, if any.
func (a *Account) TeacherProfile() (*TeacherProfile, bool) {
	if a == nil || a.Profile == nil {
		return nil, false
	}
	p, ok := a.Profile.(*TeacherProfile)
	return p, ok
}

// NewProfileFor returns an empty profile matching the role.
func NewProfileFor(userID string, role UserRole) Profile {
	switch role {
	case RoleAdmin:
		return &AdminProfile{UserID: userID}
	case RoleTeacher:
		return &TeacherProfile{UserID: userID}
	case RoleStudent:
		return &StudentProfile{UserID: userID, Status: AdmissionPending}
	case RoleParent:
		return &ParentProfile{UserID: userID}
	}
	return nil
}
