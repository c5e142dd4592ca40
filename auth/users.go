package auth

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mnehpets/rpcserve/rpc"
)

// User is a local account checked by HTTP basic authentication.
type User struct {
	PasswordHash []byte
	Identity     rpc.Identity
}

// Users maps user names to accounts.
type Users map[string]User

// HashPassword returns the bcrypt hash stored in User.PasswordHash.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Authenticate returns the identity of username when password matches.
func (u Users) Authenticate(username, password string) (*rpc.Identity, bool) {
	user, ok := u[username]
	if !ok {
		// Spend the same time as a mismatch.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, false
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return nil, false
	}
	id := user.Identity
	return &id, true
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("rpcserve"), bcrypt.DefaultCost)

// ParseUsers parses accounts from configuration. Entries are separated by
// ';' and fields by ':':
//
//	name:bcrypt-hash[:superuser][:group=name...][:perm=name...]
func ParseUsers(s string) (Users, error) {
	users := Users{}
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Split(entry, ":")
		if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
			return nil, fmt.Errorf("user entry %q: want name:hash", entry)
		}
		if _, err := bcrypt.Cost([]byte(fields[1])); err != nil {
			return nil, fmt.Errorf("user %q: %w", fields[0], err)
		}
		user := User{PasswordHash: []byte(fields[1]), Identity: rpc.Identity{Subject: fields[0]}}
		for _, f := range fields[2:] {
			switch k, v, _ := strings.Cut(f, "="); k {
			case "superuser":
				user.Identity.Superuser = true
			case "group":
				user.Identity.Groups = append(user.Identity.Groups, v)
			case "perm":
				user.Identity.Permissions = append(user.Identity.Permissions, v)
			default:
				return nil, fmt.Errorf("user %q: unknown flag %q", fields[0], f)
			}
		}
		users[fields[0]] = user
	}
	return users, nil
}
