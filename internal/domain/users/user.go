package users

import (
	"time"
)

// DateLayout is the wire format of DateOfBirth
const DateLayout = "01/02/2006"

// User is a stored user record
type User struct {
	ID          string     `json:"id"`
	FirstName   string     `json:"first_name"`
	MiddleName  *string    `json:"middle_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email"`
	PhoneNumber string     `json:"phone_number"`
	DateOfBirth string     `json:"date_of_birth"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Input is the body of a create or update request
type Input struct {
	FirstName   string `json:"first_name" validate:"required,max=100,personname"`
	MiddleName  string `json:"middle_name" validate:"omitempty,max=100,personname"`
	LastName    string `json:"last_name" validate:"required,max=100,personname"`
	Email       string `json:"email" validate:"required,max=255,email"`
	PhoneNumber string `json:"phone_number" validate:"required,usphone"`
	DateOfBirth string `json:"date_of_birth" validate:"required,birthdate"`
}

func (in Input) apply(u *User) {
	u.FirstName = in.FirstName
	u.MiddleName = nil
	if in.MiddleName != "" {
		middle := in.MiddleName
		u.MiddleName = &middle
	}
	u.LastName = in.LastName
	u.Email = in.Email
	u.PhoneNumber = in.PhoneNumber
	u.DateOfBirth = in.DateOfBirth
}
