package data

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func (r *Repository) RegisterUser(email string, password string) (uint, error) {
	if err := ValidateEmail(email); err != nil {
		return 0, errors.Join(ErrValidation, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.Config.BcryptCost)
	if err != nil {
		return 0, errors.Join(ErrDatabase, err)
	}

	user := &User{
		Email:        email,
		PasswordHash: hash,
	}

	err = r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") ||
				strings.Contains(err.Error(), "duplicate key") {
				return ErrDuplicateEmail
			}
			return errors.Join(ErrDatabase, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return user.ID, nil
}

func (r *Repository) AuthenticateUser(email string, password string) (uint, error) {
	var user User
	if err := r.DB.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, errors.Join(ErrDatabase, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}

	return user.ID, nil
}

func (r *Repository) CreatePrompt(userID uint, prompt string, audioFilePath string, model string) (uint, error) {
	record := &Prompt{
		UserID:        userID,
		Prompt:        prompt,
		AudioFilePath: audioFilePath,
		Model:         model,
	}

	if err := r.DB.Create(record).Error; err != nil {
		return 0, errors.Join(ErrDatabase, err)
	}

	return record.ID, nil
}

func (r *Repository) ListPrompts(userID uint) ([]Prompt, error) {
	var prompts []Prompt
	err := r.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&prompts).Error
	if err != nil {
		return nil, errors.Join(ErrDatabase, err)
	}

	return prompts, nil
}

func (r *Repository) DeletePrompt(userID uint, promptID uint) error {
	result := r.DB.Where("user_id = ? AND id = ?", userID, promptID).Delete(&Prompt{})
	if result.Error != nil {
		return errors.Join(ErrDatabase, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
