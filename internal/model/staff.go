package model

import (
	"time"

	"gorm.io/gorm/schema"
)

type StaffRole string

const (
	RoleOwner    StaffRole = "owner"
	RoleAdmin    StaffRole = "admin"
	RoleManager  StaffRole = "manager"
	RoleOperator StaffRole = "operator"
)

// StaffUser is a read-only view of the user directory. A nil FranchiseeID
// means a head-office account.
type StaffUser struct {
	ID           string    `json:"id" gorm:"primaryKey;type:text"`
	CompanyID    string    `json:"company_id" gorm:"type:text"`
	FranchiseeID *string   `json:"franchisee_id,omitempty" gorm:"type:text;index"`
	FullName     string    `json:"full_name" gorm:"type:text"`
	Role         StaffRole `json:"role" gorm:"type:text;not null"`
	IsActive     bool      `json:"is_active" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
}

func (StaffUser) TableName(namer schema.Namer) string {
	return namer.TableName("staff_users")
}

// AssignableRoles are the roles eligible for round-robin assignment.
var AssignableRoles = []StaffRole{RoleOwner, RoleAdmin, RoleManager}
