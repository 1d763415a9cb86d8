package models

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleVP          UserRole = "VP"
	RoleDirector    UserRole = "DIRECTOR"
	RoleUESO        UserRole = "UESO"
	RoleCoordinator UserRole = "COORDINATOR"
	RoleDean        UserRole = "DEAN"
	RoleProgramHead UserRole = "PROGRAM_HEAD"
	RoleFaculty     UserRole = "FACULTY"
	RoleImplementer UserRole = "IMPLEMENTER"
	RoleClient      UserRole = "CLIENT"
)

// Roles lists every organizational role in a stable order.
var Roles = []UserRole{
	RoleVP,
	RoleDirector,
	RoleUESO,
	RoleCoordinator,
	RoleDean,
	RoleProgramHead,
	RoleFaculty,
	RoleImplementer,
	RoleClient,
}

// AllocatorRoles may assign and adjust college budgets.
var AllocatorRoles = []UserRole{RoleVP, RoleDirector, RoleUESO}

// ProjectRoles may open projects and spend against them. Clients only read.
var ProjectRoles = []UserRole{
	RoleVP,
	RoleDirector,
	RoleUESO,
	RoleCoordinator,
	RoleDean,
	RoleProgramHead,
	RoleFaculty,
	RoleImplementer,
}

func (r UserRole) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

func ParseRole(s string) (UserRole, error) {
	r := UserRole(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

type Campus string

const (
	CampusMain           Campus = "MAIN"
	CampusPuertoPrincesa Campus = "PUERTO_PRINCESA"
	CampusQuezon         Campus = "QUEZON"
	CampusRizal          Campus = "RIZAL"
	CampusTaytay         Campus = "TAYTAY"
	CampusElNido         Campus = "EL_NIDO"
	CampusCulion         Campus = "CULION"
	CampusBusuanga       Campus = "BUSUANGA"
)

var Campuses = []Campus{
	CampusMain,
	CampusPuertoPrincesa,
	CampusQuezon,
	CampusRizal,
	CampusTaytay,
	CampusElNido,
	CampusCulion,
	CampusBusuanga,
}

func (c Campus) Valid() bool {
	for _, known := range Campuses {
		if c == known {
			return true
		}
	}
	return false
}

func ParseCampus(s string) (Campus, error) {
	c := Campus(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown campus %q", s)
	}
	return c, nil
}

type Sex string

const (
	SexMale   Sex = "MALE"
	SexFemale Sex = "FEMALE"
)

type User struct {
	gorm.Model
	Email         string   `gorm:"uniqueIndex;size:254;not null" json:"email"`
	Username      string   `gorm:"size:150" json:"username"`
	GivenName     string   `gorm:"size:150" json:"given_name"`
	MiddleInitial string   `gorm:"size:2" json:"middle_initial"`
	LastName      string   `gorm:"size:150" json:"last_name"`
	Sex           Sex      `gorm:"type:varchar(10)" json:"sex"`
	ContactNo     string   `gorm:"size:20" json:"contact_no"`
	Campus        Campus   `gorm:"type:varchar(30);not null;default:MAIN" json:"campus"`
	Role          UserRole `gorm:"type:varchar(20);not null" json:"role"`
	PasswordHash  string   `gorm:"not null" json:"-"`
}

// NormalizeEmail is the canonical form used both for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	if u.Email == "" {
		return fmt.Errorf("user email is required")
	}
	if u.Campus == "" {
		u.Campus = CampusMain
	}
	return nil
}

func (u *User) FullName() string {
	parts := make([]string, 0, 3)
	if u.GivenName != "" {
		parts = append(parts, u.GivenName)
	}
	if u.MiddleInitial != "" {
		parts = append(parts, strings.TrimSuffix(u.MiddleInitial, ".")+".")
	}
	if u.LastName != "" {
		parts = append(parts, u.LastName)
	}
	return strings.Join(parts, " ")
}

func (u *User) HasRole(roles ...UserRole) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}
