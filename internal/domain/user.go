package domain

import "time"

// User is a lab account. Email is the primary key.
type User struct {
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	Role          Role       `json:"role"`
	Name          string     `json:"name"`
	BirthDate     *time.Time `json:"birth_date,omitempty"`
	Sex           string     `json:"sex,omitempty"`
	EyeCorrection bool       `json:"eye_correction"`
	EyeCheckDate  *time.Time `json:"eye_check_date,omitempty"`
	AvatarURL     string     `json:"avatar_url,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ProfileUpdate carries the optional fields of a profile change. Nil means
// "leave unchanged".
type ProfileUpdate struct {
	Role          *Role
	Name          *string
	BirthDate     *time.Time
	Sex           *string
	EyeCorrection *bool
	EyeCheckDate  *time.Time
	AvatarURL     *string
	PasswordHash  *string
}

// Apply copies the set fields onto u.
func (p ProfileUpdate) Apply(u *User) {
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.BirthDate != nil {
		u.BirthDate = p.BirthDate
	}
	if p.Sex != nil {
		u.Sex = *p.Sex
	}
	if p.EyeCorrection != nil {
		u.EyeCorrection = *p.EyeCorrection
	}
	if p.EyeCheckDate != nil {
		u.EyeCheckDate = p.EyeCheckDate
	}
	if p.AvatarURL != nil {
		u.AvatarURL = *p.AvatarURL
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
}
