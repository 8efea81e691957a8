package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Student is a roster entry. Phone is the login identifier and the key
// administrators use for reassignment. Batches are the cohorts the student
// belongs to; deployments target batches.
type Student struct {
	ID       uuid.UUID                      `gorm:"type:uuid;primaryKey" json:"id"`
	Name     string                         `gorm:"not null" json:"name"`
	Phone    string                         `gorm:"not null;uniqueIndex" json:"phone"`
	Password string                         `gorm:"not null" json:"-"`
	Batches  datatypes.JSONSlice[string]    `json:"batches"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *Student) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// InBatch reports membership in a single batch.
func (s *Student) InBatch(batch string) bool {
	for _, b := range s.Batches {
		if b == batch {
			return true
		}
	}
	return false
}

// InAnyBatch reports whether any of the student's batches appears in the
// given target list.
func (s *Student) InAnyBatch(batches []string) bool {
	for _, b := range batches {
		if s.InBatch(b) {
			return true
		}
	}
	return false
}

func (s *Student) SetPassword(password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.Password = string(hashed)
	return nil
}

func (s *Student) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(s.Password), []byte(password)) == nil
}
