package data

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrNotFound           = errors.New("record not found")
	ErrValidation         = errors.New("validation error")
	ErrDatabase           = errors.New("database error")
)

type DataConfig struct {
	BcryptCost int
}

type Repository struct {
	DB     *gorm.DB
	Config *DataConfig
}

type User struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	Email        string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash []byte    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type Prompt struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	User          User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Prompt        string    `gorm:"not null" json:"prompt"`
	AudioFilePath string    `gorm:"not null" json:"audio_file_path"`
	Model         string    `gorm:"size:64;not null" json:"model"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
}

func LoadConfig() *DataConfig {
	return &DataConfig{
		BcryptCost: GetEnvAsIntWithDefault("BCRYPT_COST", 10),
	}
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		DB:     db,
		Config: LoadConfig(),
	}
}

func (r *Repository) AutoMigrate() error {
	if err := r.DB.AutoMigrate(&User{}, &Prompt{}); err != nil {
		return errors.Join(ErrDatabase, err)
	}
	return nil
}
