package entity

const (
	RoleCustomer = "ROLE_CUSTOMER"
	RoleAdmin    = "ROLE_ADMIN"
)

type User struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

/*
Mysql Schema:

CREATE TABLE users (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	email VARCHAR(255) NOT NULL,
	password_hash VARCHAR(255) NOT NULL,
	role VARCHAR(32) NOT NULL
);

CREATE UNIQUE INDEX email_idx ON users(email);
*/
