package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/willibrandon/gonuget-server/observability"
)

// Authentication providers stored in the feeduser provider column.
const (
	ProviderPlain = "Plain"
	ProviderLDAP  = "LDAP"
)

// AdminUsername is the built-in superuser. Admin rights are derived
// from the name, not from a column.
const AdminUsername = "admin"

// Directory resolves usernames against an external account directory.
// The zero implementation for deployments without one is NoDirectory.
type Directory interface {
	// CommonName resolves a username to its directory common name.
	CommonName(username string) (string, error)

	// Login authenticates and returns the account's full name.
	Login(username, password string) (string, error)
}

// Directory failure modes. Implementations return these so Login can
// tell a missing account from a misconfigured directory.
var (
	ErrDirectoryNotConfigured   = errors.New("no account directory configured")
	ErrDirectoryUserNotFound    = errors.New("user not found in directory")
	ErrDirectoryFilterNotUnique = errors.New("directory filter matched more than one account")
)

// NoDirectory is the Directory used when none is configured.
type NoDirectory struct{}

func (NoDirectory) CommonName(string) (string, error) {
	return "", ErrDirectoryNotConfigured
}

func (NoDirectory) Login(string, string) (string, error) {
	return "", ErrDirectoryNotConfigured
}

// User is one row of the feeduser table.
type User struct {
	ID        string
	Name      string
	Mail      *string
	MailKey   *string
	Confirmed bool
	Provider  string
	Password  *string
	APIKey    *string
}

const userColumns = `id, name, mail, mail_key, confirmed, provider, password, apikey`

func scanUser(row rowScanner) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Mail, &u.MailKey, &u.Confirmed,
		&u.Provider, &u.Password, &u.APIKey)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser loads a user by username.
func GetUser(ctx context.Context, q Querier, username string) (*User, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM feeduser WHERE id = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user "+username)
	}
	return u, nil
}

// GetUserByAPIKey loads the user holding the given API key.
func GetUserByAPIKey(ctx context.Context, q Querier, apikey string) (*User, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM feeduser WHERE apikey = ?`, apikey)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "api key")
	}
	return u, nil
}

func newUser(ctx context.Context, q Querier, username, fullname string, mail *string, provider string, passwordHash *string) (*User, error) {
	u := &User{
		ID:        username,
		Name:      fullname,
		Mail:      mail,
		Confirmed: mail == nil,
		Provider:  provider,
		Password:  passwordHash,
	}
	if mail != nil {
		key := newKey()
		u.MailKey = &key
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO feeduser (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Mail, u.MailKey, u.Confirmed, u.Provider, u.Password, u.APIKey)
	if err != nil {
		return nil, fmt.Errorf("insert user %s: %w", u.ID, err)
	}
	return u, nil
}

// newKey produces an unguessable token for API keys and mail
// confirmation links.
func newKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Update persists all mutable columns of the user row.
func (u *User) Update(ctx context.Context, q Querier) error {
	_, err := q.ExecContext(ctx,
		`UPDATE feeduser SET name = ?, mail = ?, mail_key = ?, confirmed = ?,
		 provider = ?, password = ?, apikey = ?
		 WHERE id = ?`,
		u.Name, u.Mail, u.MailKey, u.Confirmed, u.Provider, u.Password,
		u.APIKey, u.ID)
	if err != nil {
		return fmt.Errorf("update user %s: %w", u.ID, err)
	}
	return nil
}

// Delete removes the user. Packages they maintain are handed over to
// the admin so no package is left without a maintainer.
func (u *User) Delete(ctx context.Context, q Querier) error {
	admin, err := GetUser(ctx, q, AdminUsername)
	if err != nil {
		return err
	}

	packages, err := AllPackages(ctx, q)
	if err != nil {
		return err
	}
	for _, p := range packages {
		if p.Maintainer != u.ID {
			continue
		}
		if err := p.UpdateMaintainer(ctx, q, admin); err != nil {
			return err
		}
	}

	if _, err := q.ExecContext(ctx,
		`DELETE FROM feeduser WHERE id = ?`, u.ID); err != nil {
		return fmt.Errorf("delete user %s: %w", u.ID, err)
	}
	return nil
}

// IsAdmin reports whether this is the built-in superuser.
func (u *User) IsAdmin() bool {
	return u.ID == AdminUsername
}

// IsPlainAuth reports whether the user authenticates with a local
// password.
func (u *User) IsPlainAuth() bool {
	return u.Provider == ProviderPlain
}

// GenerateAPIKey replaces the user's API key with a fresh one.
func (u *User) GenerateAPIKey(ctx context.Context, q Querier) error {
	key := newKey()
	u.APIKey = &key
	return u.Update(ctx, q)
}

// RevokeAPIKey clears the user's API key.
func (u *User) RevokeAPIKey(ctx context.Context, q Querier) error {
	u.APIKey = nil
	return u.Update(ctx, q)
}

// SetMail changes the mail address of a locally authenticated user.
// The confirmation state resets and the API key is revoked until the
// new address is confirmed.
func (u *User) SetMail(ctx context.Context, q Querier, mail string) error {
	if !u.IsPlainAuth() {
		return ErrInvalidProviderForOp
	}

	key := newKey()
	u.Mail = &mail
	u.MailKey = &key
	u.Confirmed = false
	u.APIKey = nil
	return u.Update(ctx, q)
}

// SetConfirmed updates the mail confirmation state.
func (u *User) SetConfirmed(ctx context.Context, q Querier, state bool) error {
	u.Confirmed = state
	return u.Update(ctx, q)
}

// ConfirmMail flips the user holding the given confirmation key to
// confirmed.
func ConfirmMail(ctx context.Context, q Querier, key string) (*User, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM feeduser WHERE mail_key = ?`, key)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "mail confirmation key")
	}
	if err := u.SetConfirmed(ctx, q, true); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdatePassword rehashes and stores a new password for a locally
// authenticated user.
func (u *User) UpdatePassword(ctx context.Context, q Querier, password string) error {
	if !u.IsPlainAuth() {
		return ErrInvalidProviderForOp
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	hashed := string(hash)
	u.Password = &hashed
	return u.Update(ctx, q)
}

// EnsureAdmin creates the built-in superuser or resets its password to
// the configured one. Runs at boot so the admin password always tracks
// the configuration.
func EnsureAdmin(ctx context.Context, q Querier, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	hashed := string(hash)

	admin, err := GetUser(ctx, q, AdminUsername)
	switch {
	case err == nil:
		admin.Password = &hashed
		return admin.Update(ctx, q)
	case errors.Is(err, ErrNotFound):
		_, err := newUser(ctx, q, AdminUsername, AdminUsername, nil, ProviderPlain, &hashed)
		return err
	default:
		return err
	}
}

// Register creates a locally authenticated user. Usernames already
// present locally or in the directory are rejected.
func Register(ctx context.Context, q Querier, directory Directory, username, fullname, mail, password string) (*User, error) {
	if _, err := GetUser(ctx, q, username); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if _, err := directory.CommonName(username); err == nil {
		return nil, ErrUserAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	hashed := string(hash)

	u, err := newUser(ctx, q, username, fullname, &mail, ProviderPlain, &hashed)
	if err != nil {
		return nil, err
	}
	// No mail delivery is wired up, so accounts are usable immediately.
	if err := u.SetConfirmed(ctx, q, true); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies credentials. Unknown usernames fall through to the
// directory; on first successful directory login a directory-backed
// user row is created.
func Login(ctx context.Context, q Querier, directory Directory, logger observability.Logger, username, password string) (bool, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM feeduser WHERE id = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("load user %s: %w", username, err)
		}
		return directoryLogin(ctx, q, directory, logger, username, password)
	}

	switch u.Provider {
	case ProviderLDAP:
		_, err := directory.Login(username, password)
		return err == nil, nil
	case ProviderPlain:
		if u.Password == nil {
			return false, fmt.Errorf("user %s: %w", username, ErrNoPasswordHash)
		}
		err := bcrypt.CompareHashAndPassword([]byte(*u.Password), []byte(password))
		if err != nil {
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return false, nil
			}
			return false, fmt.Errorf("verify password of %s: %w", username, err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("user %s has provider %q: %w", username, u.Provider, ErrInvalidProvider)
	}
}

func directoryLogin(ctx context.Context, q Querier, directory Directory, logger observability.Logger, username, password string) (bool, error) {
	fullname, err := directory.Login(username, password)
	switch {
	case err == nil:
		if _, err := newUser(ctx, q, username, fullname, nil, ProviderLDAP, nil); err != nil {
			return false, err
		}
		return true, nil
	case errors.Is(err, ErrDirectoryFilterNotUnique):
		return false, err
	case errors.Is(err, ErrDirectoryNotConfigured), errors.Is(err, ErrDirectoryUserNotFound):
		return false, nil
	default:
		logger.Warn("Directory login failed, ignoring and proceeding: {Error}", err)
		return false, nil
	}
}
