// Package validator checks module metadata before registration. It runs an
// ordered list of independent rules, then verifies the metadata signature
// and statically scans any Go sources the module ships.
package validator

import (
	"context"
	"fmt"
	"strings"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

// RuleResult is the outcome of a single rule.
type RuleResult struct {
	Rule     string   `json:"rule"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r *RuleResult) fail(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *RuleResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Results aggregates every rule outcome.
type Results struct {
	Valid    bool         `json:"valid"`
	Rules    []RuleResult `json:"rules"`
	Errors   []string     `json:"errors,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`

	// Cause is the sentinel describing the first hard failure, if any.
	Cause error `json:"-"`
}

// Err returns nil when valid, otherwise Cause wrapped with all error messages.
func (r *Results) Err() error {
	if r.Valid {
		return nil
	}
	cause := r.Cause
	if cause == nil {
		cause = modular.ErrValidationFailed
	}
	return fmt.Errorf("%w: %s", cause, strings.Join(r.Errors, "; "))
}

func (r *Results) add(rr RuleResult, cause error) {
	r.Rules = append(r.Rules, rr)
	r.Errors = append(r.Errors, rr.Errors...)
	r.Warnings = append(r.Warnings, rr.Warnings...)
	if !rr.Valid {
		r.Valid = false
		if r.Cause == nil {
			r.Cause = cause
		}
	}
}

// Rule validates one aspect of the metadata.
type Rule interface {
	Name() string
	Check(metadata modular.ModuleMetadata) RuleResult
}

// RuleFunc adapts a function to Rule.
type RuleFunc struct {
	RuleName string
	Fn       func(metadata modular.ModuleMetadata, r *RuleResult)
}

func (f RuleFunc) Name() string { return f.RuleName }

func (f RuleFunc) Check(metadata modular.ModuleMetadata) RuleResult {
	r := RuleResult{Rule: f.RuleName, Valid: true}
	f.Fn(metadata, &r)
	return r
}

// ModuleValidator runs the rule set, the signature check and the code scan.
type ModuleValidator struct {
	rules            []Rule
	signer           *Signer
	requireSignature bool
	scanner          *CodeScanner
	logger           modular.Logger
}

// Option configures a ModuleValidator.
type Option func(*ModuleValidator)

// WithSigner enables HMAC signature verification.
func WithSigner(s *Signer, require bool) Option {
	return func(v *ModuleValidator) {
		v.signer = s
		v.requireSignature = require
	}
}

// WithScanner enables static analysis of module sources.
func WithScanner(s *CodeScanner) Option {
	return func(v *ModuleValidator) { v.scanner = s }
}

// WithRules appends extra rules after the built-in ones.
func WithRules(rules ...Rule) Option {
	return func(v *ModuleValidator) { v.rules = append(v.rules, rules...) }
}

// WithLogger sets the logger.
func WithLogger(l modular.Logger) Option {
	return func(v *ModuleValidator) {
		if l != nil {
			v.logger = l
		}
	}
}

// New builds a validator with the default rules.
func New(opts ...Option) *ModuleValidator {
	v := &ModuleValidator{
		rules:  DefaultRules(),
		logger: modular.NopLogger{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// FromConfig builds a validator from the validator config section.
func FromConfig(cfg modular.ValidatorConfig, logger modular.Logger) *ModuleValidator {
	opts := []Option{WithLogger(logger)}
	if cfg.SigningSecret != "" {
		opts = append(opts, WithSigner(NewSigner([]byte(cfg.SigningSecret)), cfg.RequireSignature))
	}
	if cfg.SourceRoot != "" {
		opts = append(opts, WithScanner(NewCodeScanner(cfg.SourceRoot, ScanOptions{ForbidReflect: cfg.ForbidReflect})))
	}
	return New(opts...)
}

// Validate runs every rule and reports whether the metadata is acceptable.
// Rules are independent: a failing rule does not stop later ones.
func (v *ModuleValidator) Validate(ctx context.Context, metadata modular.ModuleMetadata) (bool, *Results) {
	res := &Results{Valid: true}
	for _, rule := range v.rules {
		res.add(rule.Check(metadata), modular.ErrValidationFailed)
	}

	sigCause := modular.ErrSignatureMismatch
	if metadata.Signature == "" {
		sigCause = modular.ErrSignatureMissing
	}
	res.add(v.checkSignature(metadata), sigCause)

	if v.scanner != nil && len(metadata.SourceFiles) > 0 {
		res.add(v.scanSources(ctx, metadata), modular.ErrUnsafeCode)
	}

	if !res.Valid {
		v.logger.Debug("Module validation failed", "module", metadata.ID, "errors", res.Errors)
	}
	return res.Valid, res
}

func (v *ModuleValidator) checkSignature(metadata modular.ModuleMetadata) RuleResult {
	r := RuleResult{Rule: "signature", Valid: true}
	if v.signer == nil {
		if metadata.Signature != "" {
			r.warn("signature present but no signing secret configured; not verified")
		}
		return r
	}
	if metadata.Signature == "" {
		if v.requireSignature {
			r.fail("module is not signed")
		} else {
			r.warn("module is not signed")
		}
		return r
	}
	ok, err := v.signer.Verify(metadata)
	switch {
	case err != nil:
		r.fail("signature verification error: %v", err)
	case !ok:
		r.fail("signature mismatch: metadata may have been tampered with")
	}
	return r
}

func (v *ModuleValidator) scanSources(ctx context.Context, metadata modular.ModuleMetadata) RuleResult {
	r := RuleResult{Rule: "code_safety", Valid: true}
	report, err := v.scanner.ScanFiles(ctx, metadata.SourceFiles)
	if err != nil {
		r.fail("code scan error: %v", err)
		return r
	}
	for _, f := range report.Findings {
		r.fail("%s", f.String())
	}
	return r
}
