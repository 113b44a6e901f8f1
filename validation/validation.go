// Package validation checks credentials and request bodies with
// go-playground/validator. It registers the libpassword tag used for the
// account password policy and checks that an email domain can receive mail.
package validation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// PasswordTag is the struct tag enforcing the account password policy.
const PasswordTag = "libpassword"

const minPasswordLength = 8

// Resolver is the subset of *net.Resolver used for the domain check.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Validator validates emails, passwords and tagged structs. It is safe for
// concurrent use.
type Validator struct {
	validate      *validator.Validate
	resolver      Resolver
	lookupTimeout time.Duration
}

// Option configures a Validator.
type Option func(*Validator)

// WithResolver replaces net.DefaultResolver.
func WithResolver(r Resolver) Option {
	return func(v *Validator) { v.resolver = r }
}

// WithLookupTimeout bounds each DNS lookup. Default 3s.
func WithLookupTimeout(d time.Duration) Option {
	return func(v *Validator) { v.lookupTimeout = d }
}

// New builds a Validator with the libpassword tag registered.
func New(opts ...Option) *Validator {
	v := &Validator{
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		resolver:      net.DefaultResolver,
		lookupTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(v)
	}
	// Registration only fails for an empty tag or nil func.
	_ = v.validate.RegisterValidation(PasswordTag, func(fl validator.FieldLevel) bool {
		return PasswordPolicy(fl.Field().String())
	})
	return v
}

// Email reports whether email is a syntactically valid address.
func (v *Validator) Email(email string) bool {
	return v.validate.Var(strings.TrimSpace(email), "required,email,max=254") == nil
}

// Password reports whether password satisfies PasswordPolicy.
func (v *Validator) Password(password string) bool {
	return v.validate.Var(password, "required,"+PasswordTag) == nil
}

// EmailDomain reports whether the domain of email publishes an MX record,
// or failing that an A/AAAA record. A definitive NXDOMAIN or no-records
// answer returns false; transient resolver failures return an error.
func (v *Validator) EmailDomain(ctx context.Context, email string) (bool, error) {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return false, nil
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))

	ctx, cancel := context.WithTimeout(ctx, v.lookupTimeout)
	defer cancel()

	mx, err := v.resolver.LookupMX(ctx, domain)
	if err == nil {
		for _, rec := range mx {
			// A null MX ("." host) declares the domain does not accept mail.
			if rec != nil && rec.Host != "." && rec.Host != "" {
				return true, nil
			}
		}
		if len(mx) > 0 {
			return false, nil
		}
	} else if !isNotFound(err) {
		return false, fmt.Errorf("lookup mx %s: %w", domain, err)
	}

	hosts, err := v.resolver.LookupHost(ctx, domain)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("lookup host %s: %w", domain, err)
	}
	return len(hosts) > 0, nil
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

// PasswordPolicy requires at least 8 characters, only ASCII letters and
// digits, and at least one lower-case letter, one upper-case letter and one
// digit.
func PasswordPolicy(password string) bool {
	if len(password) < minPasswordLength {
		return false
	}
	var lower, upper, digit bool
	for i := 0; i < len(password); i++ {
		c := password[i]
		switch {
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= '0' && c <= '9':
			digit = true
		default:
			return false
		}
	}
	return lower && upper && digit
}

// Struct validates s using its validate tags.
func (v *Validator) Struct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return &ValidationError{Errors: validationErrors}
		}
		return err
	}
	return nil
}

// ValidationError wraps validator.ValidationErrors with readable messages.
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, err := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("field '%s' %s", err.Field(), msgForTag(err)))
	}
	return strings.Join(msgs, "; ")
}

// Fields returns a map of field names to error messages.
func (e *ValidationError) Fields() map[string]string {
	fields := make(map[string]string, len(e.Errors))
	for _, err := range e.Errors {
		fields[err.Field()] = msgForTag(err)
	}
	return fields
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case PasswordTag:
		return "must be at least 8 letters and digits with an upper-case letter, a lower-case letter and a digit"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}
