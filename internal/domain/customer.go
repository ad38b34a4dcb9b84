package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	nameLengthMin        = 2
	nameLengthMax        = 32
	postalCodeLength     = 5
	houseNumberLengthMax = 4
)

// Address — почтовый адрес клиента.
type Address struct {
	PostalCode  string
	City        string
	Street      string
	HouseNumber string
}

// Validate проверяет поля адреса.
func (a Address) Validate() []error {
	var errs []error

	if !isDigits(a.PostalCode, postalCodeLength) {
		errs = append(errs, ErrPostalCodeInvalid)
	}
	if !lengthBetween(a.City, nameLengthMin, nameLengthMax) {
		errs = append(errs, ErrCityInvalid)
	}
	if !lengthBetween(a.Street, nameLengthMin, nameLengthMax) {
		errs = append(errs, ErrStreetInvalid)
	}
	if utf8.RuneCountInString(a.HouseNumber) > houseNumberLengthMax {
		errs = append(errs, ErrHouseNumberInvalid)
	}

	return errs
}

// Customer — клиент магазина.
type Customer struct {
	ID        int64
	LastName  string
	FirstName string
	Email     string
	Address   Address
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет инварианты клиента и возвращает список замечаний.
func (c *Customer) ValidateInvariants() []error {
	var errs []error

	if !lengthBetween(c.LastName, nameLengthMin, nameLengthMax) {
		errs = append(errs, ErrLastNameInvalid)
	}
	email := strings.TrimSpace(c.Email)
	if email == "" || !strings.Contains(email, "@") {
		errs = append(errs, ErrEmailInvalid)
	}
	errs = append(errs, c.Address.Validate()...)

	return errs
}

// ApplyValues переносит изменяемые поля из update, сохраняя идентичность и метки времени.
func (c *Customer) ApplyValues(update Customer) {
	c.LastName = update.LastName
	c.FirstName = update.FirstName
	c.Email = update.Email
	c.Address = update.Address
}

func lengthBetween(s string, minLen, maxLen int) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	return n >= minLen && n <= maxLen
}

func isDigits(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
