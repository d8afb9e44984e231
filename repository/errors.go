package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateUser     = errors.New("user with this email already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTrackNotActive    = errors.New("track is not on sale")
)

// isDuplicateKey recognises MySQL error 1062 however it reaches us.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}
